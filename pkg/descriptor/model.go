// Package descriptor holds the parsed form of a contract interface
// descriptor (ABI) and the loader that produces it.
package descriptor

// StateMutability is the declared mutability of a function.
type StateMutability string

const (
	Pure       StateMutability = "pure"
	View       StateMutability = "view"
	NonPayable StateMutability = "nonpayable"
	Payable    StateMutability = "payable"
)

// Param is one input, output or tuple component.
type Param struct {
	Name         string
	Type         string
	InternalType string
	Indexed      bool
	Components   []Param

	// Path locates the param inside its descriptor file, e.g.
	// "erc20[3].inputs[1]".
	Path string
}

type Event struct {
	Name      string
	Inputs    []Param
	Anonymous bool
	Path      string
}

type Function struct {
	Name            string
	Inputs          []Param
	Outputs         []Param
	StateMutability StateMutability
	Path            string
}

// IsReadOnly reports whether the function may be called without mutating
// chain state.
func (f Function) IsReadOnly() bool {
	return f.StateMutability == View || f.StateMutability == Pure
}

// ContractInterface is the parsed descriptor of one contract. It is not
// modified after Parse returns.
type ContractInterface struct {
	Name      string
	Events    []Event
	Functions []Function
}
