package symbols

// Descriptors of the runtime types involved in reflective calls.
const (
	ObjectDescriptor = "Ljava/lang/Object;"
	ClassDescriptor  = "Ljava/lang/Class;"
	StringDescriptor = "Ljava/lang/String;"
	FieldDescriptor  = "Ljava/lang/reflect/Field;"
	MethodDescriptor = "Ljava/lang/reflect/Method;"
)

// JavaLangObject returns the identity of java.lang.Object.
func (tb *Table) JavaLangObject() *Type { return tb.Type(ObjectDescriptor) }

// JavaLangClass returns the identity of java.lang.Class.
func (tb *Table) JavaLangClass() *Type { return tb.Type(ClassDescriptor) }

// JavaLangString returns the identity of java.lang.String.
func (tb *Table) JavaLangString() *Type { return tb.Type(StringDescriptor) }

// ReflectField returns the identity of java.lang.reflect.Field.
func (tb *Table) ReflectField() *Type { return tb.Type(FieldDescriptor) }

// ReflectMethod returns the identity of java.lang.reflect.Method.
func (tb *Table) ReflectMethod() *Type { return tb.Type(MethodDescriptor) }

// Names of the recognized reflective API methods.
func (tb *Table) NameGetClass() *String          { return tb.String("getClass") }
func (tb *Table) NameForName() *String           { return tb.String("forName") }
func (tb *Table) NameGetField() *String          { return tb.String("getField") }
func (tb *Table) NameGetDeclaredField() *String  { return tb.String("getDeclaredField") }
func (tb *Table) NameGetMethod() *String         { return tb.String("getMethod") }
func (tb *Table) NameGetDeclaredMethod() *String { return tb.String("getDeclaredMethod") }
func (tb *Table) NameGetName() *String           { return tb.String("getName") }
