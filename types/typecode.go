package types

// TypeCode is the integer type tag MOO code sees from typeof() and the
// database's Format 4 encoding. Values match the classic LambdaMOO/
// ToastStunt numbering so dumped databases and imported cores stay
// compatible.
type TypeCode int

const (
	TYPE_INT   TypeCode = 0
	TYPE_OBJ   TypeCode = 1
	TYPE_STR   TypeCode = 2
	TYPE_ERR   TypeCode = 3
	TYPE_LIST  TypeCode = 4
	TYPE_ANON  TypeCode = 12
	TYPE_FLOAT TypeCode = 9
	TYPE_MAP   TypeCode = 10
	TYPE_WAIF  TypeCode = 13
	TYPE_BOOL  TypeCode = 14
)

var typeCodeNames = map[TypeCode]string{
	TYPE_INT:   "INT",
	TYPE_OBJ:   "OBJ",
	TYPE_STR:   "STR",
	TYPE_ERR:   "ERR",
	TYPE_LIST:  "LIST",
	TYPE_ANON:  "ANON",
	TYPE_FLOAT: "FLOAT",
	TYPE_MAP:   "MAP",
	TYPE_WAIF:  "WAIF",
	TYPE_BOOL:  "BOOL",
}

func (t TypeCode) String() string {
	if name, ok := typeCodeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}
