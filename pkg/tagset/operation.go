package tagset

// UtilizationClass is the purchase-option class of a reservation
type UtilizationClass int

const (
	UtilizationHeavy UtilizationClass = iota
	UtilizationMedium
	UtilizationLight
	UtilizationFixed
)

// String returns the string value of UtilizationClass
func (u UtilizationClass) String() string {
	switch u {
	case UtilizationHeavy:
		return "Heavy"
	case UtilizationMedium:
		return "Medium"
	case UtilizationLight:
		return "Light"
	case UtilizationFixed:
		return "Fixed"
	}
	return "Unknown"
}

type operationKind int

const (
	kindOndemand operationKind = iota
	kindReserved
	kindBorrowed
	kindLent
	kindUnused
	kindUpfrontAmortized
)

// Operation is one member of the closed operation variant set. Instances are
// package-level singletons; rows sort by seq, which follows declaration
// order rather than the operation name.
type Operation struct {
	Name        string
	seq         int
	kind        operationKind
	utilization UtilizationClass
}

// Seq returns the fixed sort sequence of the operation
func (o *Operation) Seq() int { return o.seq }

// Utilization returns the reservation class the operation belongs to.
// Meaningless for the ondemand operation.
func (o *Operation) Utilization() UtilizationClass { return o.utilization }

// IsOndemand returns true for the on-demand instance operation
func (o *Operation) IsOndemand() bool { return o.kind == kindOndemand }

// IsReserved returns true for owner-consumed reservation usage
func (o *Operation) IsReserved() bool { return o.kind == kindReserved }

// IsBorrowed returns true for usage consumed against another account's reservation
func (o *Operation) IsBorrowed() bool { return o.kind == kindBorrowed }

// IsLent returns true for the lender-side mirror of borrowed usage
func (o *Operation) IsLent() bool { return o.kind == kindLent }

// IsUnused returns true for purchased-but-idle capacity rows
func (o *Operation) IsUnused() bool { return o.kind == kindUnused }

// IsUpfrontAmortized returns true for amortized upfront cost rows
func (o *Operation) IsUpfrontAmortized() bool { return o.kind == kindUpfrontAmortized }

var nextOperationSeq = 0

func newOperation(name string, kind operationKind, u UtilizationClass) *Operation {
	op := &Operation{Name: name, seq: nextOperationSeq, kind: kind, utilization: u}
	nextOperationSeq++
	return op
}

// Declaration order here fixes the sort order of reservation rows and the
// source/destination walk order of the allocation sweep. Do not reorder.
var (
	OperationOndemandInstances = newOperation("OndemandInstances", kindOndemand, UtilizationHeavy)

	OperationReservedInstancesHeavy  = newOperation("ReservedInstancesHeavy", kindReserved, UtilizationHeavy)
	OperationReservedInstancesMedium = newOperation("ReservedInstancesMedium", kindReserved, UtilizationMedium)
	OperationReservedInstancesLight  = newOperation("ReservedInstancesLight", kindReserved, UtilizationLight)
	OperationReservedInstancesFixed  = newOperation("ReservedInstancesFixed", kindReserved, UtilizationFixed)

	OperationBorrowedInstancesHeavy  = newOperation("BorrowedInstancesHeavy", kindBorrowed, UtilizationHeavy)
	OperationBorrowedInstancesMedium = newOperation("BorrowedInstancesMedium", kindBorrowed, UtilizationMedium)
	OperationBorrowedInstancesLight  = newOperation("BorrowedInstancesLight", kindBorrowed, UtilizationLight)
	OperationBorrowedInstancesFixed  = newOperation("BorrowedInstancesFixed", kindBorrowed, UtilizationFixed)

	OperationLentInstancesHeavy  = newOperation("LentInstancesHeavy", kindLent, UtilizationHeavy)
	OperationLentInstancesMedium = newOperation("LentInstancesMedium", kindLent, UtilizationMedium)
	OperationLentInstancesLight  = newOperation("LentInstancesLight", kindLent, UtilizationLight)
	OperationLentInstancesFixed  = newOperation("LentInstancesFixed", kindLent, UtilizationFixed)

	OperationUnusedInstancesHeavy  = newOperation("UnusedInstancesHeavy", kindUnused, UtilizationHeavy)
	OperationUnusedInstancesMedium = newOperation("UnusedInstancesMedium", kindUnused, UtilizationMedium)
	OperationUnusedInstancesLight  = newOperation("UnusedInstancesLight", kindUnused, UtilizationLight)
	OperationUnusedInstancesFixed  = newOperation("UnusedInstancesFixed", kindUnused, UtilizationFixed)

	OperationUpfrontAmortizedHeavy  = newOperation("UpfrontAmortizedHeavy", kindUpfrontAmortized, UtilizationHeavy)
	OperationUpfrontAmortizedMedium = newOperation("UpfrontAmortizedMedium", kindUpfrontAmortized, UtilizationMedium)
	OperationUpfrontAmortizedLight  = newOperation("UpfrontAmortizedLight", kindUpfrontAmortized, UtilizationLight)
	OperationUpfrontAmortizedFixed  = newOperation("UpfrontAmortizedFixed", kindUpfrontAmortized, UtilizationFixed)
)

var allOperations = []*Operation{
	OperationOndemandInstances,
	OperationReservedInstancesHeavy, OperationReservedInstancesMedium, OperationReservedInstancesLight, OperationReservedInstancesFixed,
	OperationBorrowedInstancesHeavy, OperationBorrowedInstancesMedium, OperationBorrowedInstancesLight, OperationBorrowedInstancesFixed,
	OperationLentInstancesHeavy, OperationLentInstancesMedium, OperationLentInstancesLight, OperationLentInstancesFixed,
	OperationUnusedInstancesHeavy, OperationUnusedInstancesMedium, OperationUnusedInstancesLight, OperationUnusedInstancesFixed,
	OperationUpfrontAmortizedHeavy, OperationUpfrontAmortizedMedium, OperationUpfrontAmortizedLight, OperationUpfrontAmortizedFixed,
}

// ReservedOperation returns the owner-consumption operation for a class
func ReservedOperation(u UtilizationClass) *Operation {
	switch u {
	case UtilizationMedium:
		return OperationReservedInstancesMedium
	case UtilizationLight:
		return OperationReservedInstancesLight
	case UtilizationFixed:
		return OperationReservedInstancesFixed
	}
	return OperationReservedInstancesHeavy
}

// BorrowedOperation returns the borrower-consumption operation for a class
func BorrowedOperation(u UtilizationClass) *Operation {
	switch u {
	case UtilizationMedium:
		return OperationBorrowedInstancesMedium
	case UtilizationLight:
		return OperationBorrowedInstancesLight
	case UtilizationFixed:
		return OperationBorrowedInstancesFixed
	}
	return OperationBorrowedInstancesHeavy
}

// LentOperation returns the lender-side operation for a class
func LentOperation(u UtilizationClass) *Operation {
	switch u {
	case UtilizationMedium:
		return OperationLentInstancesMedium
	case UtilizationLight:
		return OperationLentInstancesLight
	case UtilizationFixed:
		return OperationLentInstancesFixed
	}
	return OperationLentInstancesHeavy
}

// UnusedOperation returns the idle-capacity operation for a class
func UnusedOperation(u UtilizationClass) *Operation {
	switch u {
	case UtilizationMedium:
		return OperationUnusedInstancesMedium
	case UtilizationLight:
		return OperationUnusedInstancesLight
	case UtilizationFixed:
		return OperationUnusedInstancesFixed
	}
	return OperationUnusedInstancesHeavy
}

// UpfrontAmortizedOperation returns the amortized upfront operation for a class
func UpfrontAmortizedOperation(u UtilizationClass) *Operation {
	switch u {
	case UtilizationMedium:
		return OperationUpfrontAmortizedMedium
	case UtilizationLight:
		return OperationUpfrontAmortizedLight
	case UtilizationFixed:
		return OperationUpfrontAmortizedFixed
	}
	return OperationUpfrontAmortizedHeavy
}
