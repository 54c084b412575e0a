package domain

// Supported contract interfaces. RGB20 models fungible assets, RGB21 unique
// digital assets.
const (
	IfaceRGB20 = "RGB20"
	IfaceRGB21 = "RGB21"
)

// ContractFormats carries the encoded state of a contract or of its genesis
// in the three serialization formats exchanged between parties: a canonical
// compact form, a strict human-auditable form and an armored text-safe form.
type ContractFormats struct {
	Legacy  string `json:"legacy"`
	Strict  string `json:"strict"`
	Armored string `json:"armored"`
}

// MediaInfo is the mime type and source hyperlink of a media attachment.
type MediaInfo struct {
	Type   string `json:"type"`
	Source string `json:"source"`
}

// ContractMeta is the optional media metadata of RGB21 contracts.
type ContractMeta struct {
	TokenIndex uint32      `json:"tokenIndex"`
	Media      []MediaInfo `json:"media,omitempty"`
}

// Contract is an issued or imported asset contract. Identity and issuance
// metadata are immutable once issued: only the allocation set, and therefore
// the balance, changes over time via accepted transfers.
type Contract struct {
	ContractID  string          `json:"contractId"`
	IfaceID     string          `json:"ifaceId"`
	SchemaID    string          `json:"schemaId"`
	Iface       string          `json:"iface"`
	Ticker      string          `json:"ticker"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Supply      uint64          `json:"supply"`
	Precision   uint8           `json:"precision"`
	Created     int64           `json:"created"`
	Genesis     ContractFormats `json:"genesis"`
	Contract    ContractFormats `json:"contract"`
	Meta        *ContractMeta   `json:"meta,omitempty"`
	Hidden      bool            `json:"hidden"`
}

// IsUDA returns whether the contract models unique digital assets.
func (c *Contract) IsUDA() bool {
	return c.Iface == IfaceRGB21
}

// Balance sums the unspent allocation amounts owned by this wallet over the
// given allocation set.
func (c *Contract) Balance(allocations []Allocation) uint64 {
	var balance uint64
	for _, a := range allocations {
		if a.ContractID != c.ContractID || a.IsSpent || !a.IsMine {
			continue
		}
		if a.Value.IsUDA() {
			balance += a.Value.UDA().Fraction
			continue
		}
		balance += a.Value.Amount()
	}
	return balance
}
