package model

// ItemName identifies a purchasable power-up.
type ItemName string

const (
	ItemBooster     ItemName = "booster"
	ItemMagnet      ItemName = "magnet"
	ItemShield      ItemName = "shield"
	ItemAmmo        ItemName = "ammo"
	ItemCoinDoubler ItemName = "coin_doubler"
)

// ItemNames lists every known item.
var ItemNames = []ItemName{ItemBooster, ItemMagnet, ItemShield, ItemAmmo, ItemCoinDoubler}

// Valid reports whether n is a known item.
func (n ItemName) Valid() bool {
	for _, known := range ItemNames {
		if n == known {
			return true
		}
	}
	return false
}

// Item is a catalogue entry. Count is how many units one purchase grants.
type Item struct {
	ID    string   `json:"id"`
	Name  ItemName `json:"name"`
	Cost  int      `json:"cost"`
	Count int      `json:"count"`
}

// Holding is how many units of an item a user owns.
type Holding struct {
	ID    string `json:"id"`
	User  string `json:"user"`
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// ItemOffer is a catalogue entry annotated for one user. Count is what the
// user owns; PackSize is what one purchase grants.
type ItemOffer struct {
	ID       string   `json:"id"`
	Name     ItemName `json:"name"`
	Cost     int      `json:"cost"`
	PackSize int      `json:"packSize"`
	Count    int      `json:"count"`
	CanBuy   bool     `json:"canBuy"`
}

// Account is the part of a user record the backend reads.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Coins    int    `json:"coins"`
}

// DisplayName prefers the username, then the name.
func (a Account) DisplayName() string {
	if a.Username != "" {
		return a.Username
	}
	return a.Name
}
