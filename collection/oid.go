package collection

// OID identifies a record of type T inside its collection. Identities are
// assigned by the collection in strictly increasing order.
type OID[T any] int64

// Object is the contract every stored record satisfies through its pointer.
type Object[T any] interface {
	*T
	GetID() OID[T]
	SetID(OID[T])
}

// Cloner is implemented by records holding slices or maps. The collection
// calls Clone whenever a value crosses its boundary.
type Cloner[T any] interface {
	Clone() T
}
