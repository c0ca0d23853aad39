package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Entry points of the on-ledger tidal program.
const (
	entryCreateAllowlist = "tidal::create_allowlist_entry"
	entryAdd             = "tidal::add"
	entryPublish         = "tidal::publish"
	entrySealApprove     = "tidal::seal_approve"
)

func target(pkg ObjectID, entry string) string {
	return pkg.Hex() + "::" + entry
}

// NewCreateAllowlistTx builds the transaction that creates an authorization
// list with the given admission fee. The ledger program transfers the paired
// capability object to the sender.
func NewCreateAllowlistTx(sender common.Address, pkg ObjectID, fee uint64, name string) *Transaction {
	return &Transaction{
		Sender:    sender,
		GasBudget: DefaultGasBudget,
		Commands: []Command{
			{
				Kind: CommandMoveCall,
				Call: &Call{
					Target: target(pkg, entryCreateAllowlist),
					Args:   []Arg{U64Arg(fee), StringArg(name)},
				},
			},
		},
	}
}

// NewAdmitBuyerTx builds the single transaction that splits the exact
// admission fee from the sender's funds and invokes the admission entry
// point. Payment and list mutation commit or fail together; the program is
// authoritative on fee matching.
func NewAdmitBuyerTx(sender common.Address, pkg, allowlist, cap ObjectID, buyer common.Address, fee uint64) *Transaction {
	return &Transaction{
		Sender:    sender,
		GasBudget: DefaultGasBudget,
		Commands: []Command{
			{Kind: CommandSplitPayment, Amount: fee},
			{
				Kind: CommandMoveCall,
				Call: &Call{
					Target: target(pkg, entryAdd),
					Args: []Arg{
						PaymentArg(),
						ObjectArg(allowlist),
						ObjectArg(cap),
						AddressArg(buyer),
					},
				},
			},
		},
	}
}

// NewPublishTx builds the transaction that records the stored blob's content
// id against the authorization list.
func NewPublishTx(sender common.Address, pkg, allowlist, cap ObjectID, blobID string) *Transaction {
	return &Transaction{
		Sender:    sender,
		GasBudget: DefaultGasBudget,
		Commands: []Command{
			{
				Kind: CommandMoveCall,
				Call: &Call{
					Target: target(pkg, entryPublish),
					Args:   []Arg{ObjectArg(allowlist), ObjectArg(cap), StringArg(blobID)},
				},
			},
		},
	}
}

// NewApproveCall builds the unsigned transaction that invokes the program's
// authorization-check entry point for the given encrypted-object identity.
// It is never submitted; key servers execute it hypothetically against
// current ledger state to decide share release.
func NewApproveCall(pkg ObjectID, identity []byte, allowlist ObjectID) *Transaction {
	return &Transaction{
		GasBudget: DefaultGasBudget,
		Commands: []Command{
			{
				Kind: CommandMoveCall,
				Call: &Call{
					Target: target(pkg, entrySealApprove),
					Args:   []Arg{BytesArg(identity), ObjectArg(allowlist)},
				},
			},
		},
	}
}

// Object type suffixes declared by the tidal program.
const (
	allowlistTypeSuffix = "::tidal::Allowlist"
	capTypeSuffix       = "::tidal::Cap"
)

// IsAllowlistType reports whether the declared object type is an
// authorization list.
func IsAllowlistType(t string) bool {
	return strings.HasSuffix(t, allowlistTypeSuffix)
}

// IsCapType reports whether the declared object type is an allowlist
// capability.
func IsCapType(t string) bool {
	return strings.HasSuffix(t, capTypeSuffix)
}

// Allowlist is the decoded content of an authorization-list object.
type Allowlist struct {
	Name    string           `json:"name"`
	Fee     uint64           `json:"fee"`
	Members []common.Address `json:"list"`
}

// HasMember reports whether the address has been admitted.
func (a *Allowlist) HasMember(addr common.Address) bool {
	for _, m := range a.Members {
		if m == addr {
			return true
		}
	}
	return false
}

// DecodeAllowlist decodes an authorization list from an object read with
// content visibility.
func DecodeAllowlist(obj *Object) (*Allowlist, error) {
	if len(obj.Content) == 0 {
		return nil, fmt.Errorf("object %s has no content; read it with show_content", obj.ID.Hex())
	}
	var list Allowlist
	if err := json.Unmarshal(obj.Content, &list); err != nil {
		return nil, fmt.Errorf("decoding allowlist %s: %w", obj.ID.Hex(), err)
	}
	return &list, nil
}
