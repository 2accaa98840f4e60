package core

// Change operations carried by ChangeEvent.
const (
	ChangeAdd     = "add"
	ChangeDelete  = "delete"
	ChangeSeed    = "seed"
	ChangeMigrate = "migrate"
)

// ChangeEvent describes a successful write to one logical table. Key is the
// movement id or the category name, empty for table-wide changes.
type ChangeEvent struct {
	Table string `json:"table"`
	Op    string `json:"op"`
	Key   string `json:"key,omitempty"`
	User  string `json:"user,omitempty"`
}
