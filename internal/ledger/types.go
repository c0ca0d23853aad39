package ledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ObjectID identifies an object on the ledger (32 bytes, 0x-prefixed hex).
type ObjectID [32]byte

// ParseObjectID parses a 0x-prefixed, 64-digit hex object id.
func ParseObjectID(s string) (ObjectID, error) {
	var id ObjectID
	if !strings.HasPrefix(s, "0x") {
		return id, fmt.Errorf("object id must start with 0x: %q", s)
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return id, fmt.Errorf("object id is not valid hex: %q", s)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("object id must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// MustObjectID parses an object id and panics on failure. For tests and
// static configuration only.
func MustObjectID(s string) ObjectID {
	id, err := ParseObjectID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Hex returns the canonical 0x-prefixed representation.
func (id ObjectID) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Bytes returns a copy of the raw id bytes.
func (id ObjectID) Bytes() []byte {
	b := make([]byte, len(id))
	copy(b, id[:])
	return b
}

// IsZero reports whether the id is the zero id.
func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}

func (id ObjectID) String() string { return id.Hex() }

// MarshalJSON encodes the id as its hex form.
func (id ObjectID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Hex())
}

// UnmarshalJSON decodes an id from its hex form.
func (id *ObjectID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseObjectID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Argument kinds accepted by program entry points.
const (
	ArgObject  = "object"
	ArgU64     = "u64"
	ArgString  = "string"
	ArgAddress = "address"
	ArgBytes   = "bytes"
	// ArgPayment references the coin produced by the transaction's
	// SplitPayment command.
	ArgPayment = "payment"
)

// Arg is one ordered argument of a program call.
type Arg struct {
	Kind    string         `json:"kind"`
	Object  ObjectID       `json:"object,omitempty"`
	U64     uint64         `json:"u64,omitempty"`
	Str     string         `json:"string,omitempty"`
	Address common.Address `json:"address,omitempty"`
	Bytes   []byte         `json:"bytes,omitempty"`
}

// ObjectArg references a ledger object by id.
func ObjectArg(id ObjectID) Arg { return Arg{Kind: ArgObject, Object: id} }

// U64Arg passes an unsigned integer.
func U64Arg(v uint64) Arg { return Arg{Kind: ArgU64, U64: v} }

// StringArg passes a UTF-8 string.
func StringArg(s string) Arg { return Arg{Kind: ArgString, Str: s} }

// AddressArg passes an account address.
func AddressArg(a common.Address) Arg { return Arg{Kind: ArgAddress, Address: a} }

// BytesArg passes raw bytes.
func BytesArg(b []byte) Arg { return Arg{Kind: ArgBytes, Bytes: b} }

// PaymentArg references the coin split off by the SplitPayment command.
func PaymentArg() Arg { return Arg{Kind: ArgPayment} }

// Call names a program entry point and its ordered arguments.
type Call struct {
	Target string `json:"target"` // "<package>::<module>::<entry>"
	Args   []Arg  `json:"args"`
}

// Command kinds within a transaction.
const (
	CommandSplitPayment = "split_payment"
	CommandMoveCall     = "move_call"
)

// Command is a single step of a transaction. Exactly one payload field is
// set, according to Kind.
type Command struct {
	Kind string `json:"kind"`

	// SplitPayment: amount in the smallest currency unit, split from the
	// sender's funds.
	Amount uint64 `json:"amount,omitempty"`

	// MoveCall payload.
	Call *Call `json:"call,omitempty"`
}

// Transaction is a typed call descriptor submitted to the ledger gateway.
type Transaction struct {
	Sender    common.Address `json:"sender"`
	GasBudget uint64         `json:"gas_budget"`
	Commands  []Command      `json:"commands"`
}

// DefaultGasBudget matches the budget the ledger program was deployed with.
const DefaultGasBudget = 10_000_000

// KindBytes serializes only the transaction's commands, producing the
// unsigned form used for hypothetical execution by the key servers. Sender
// and gas are deliberately excluded: the simulating server substitutes the
// credential holder as sender.
func (t *Transaction) KindBytes() ([]byte, error) {
	return json.Marshal(t.Commands)
}

// Execution statuses reported by the ledger.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// ObjectRef references an object created or mutated by a transaction.
type ObjectRef struct {
	ID      ObjectID `json:"id"`
	Version uint64   `json:"version"`
	Type    string   `json:"type,omitempty"`
}

// ExecutionResult is the structured outcome of a submitted transaction.
type ExecutionResult struct {
	Status  string      `json:"status"`
	Error   string      `json:"error,omitempty"`
	Digest  string      `json:"digest"`
	Created []ObjectRef `json:"created,omitempty"`
}

// Succeeded reports whether the transaction committed successfully.
func (r *ExecutionResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// GetObjectOptions control the visibility of the returned object.
type GetObjectOptions struct {
	ShowType    bool
	ShowContent bool
}

// Object is a ledger object as returned by a read query.
type Object struct {
	ID      ObjectID        `json:"id"`
	Version uint64          `json:"version"`
	Type    string          `json:"type,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}
