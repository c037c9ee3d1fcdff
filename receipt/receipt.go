package receipt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SortyxServer/classify"
)

// Payload is the disposal receipt embedded in the token handed back to the
// kiosk. The token is opaque to clients; gates decode it to route the item.
type Payload struct {
	ID             string `json:"id"`
	Classification string `json:"classification"`
	Item           string `json:"item"`
	DisposalCode   string `json:"disposal_code"`
	Timestamp      string `json:"timestamp"`
}

// Encode builds a URL-safe base64 token for one verdict.
func Encode(v classify.Verdict) (string, error) {
	p := Payload{
		ID:             uuid.NewString(),
		Classification: string(v.Classification),
		Item:           v.ItemName,
		DisposalCode:   v.DisposalCode,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode receipt: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// Decode reverses Encode. Used by gate controllers and by tests.
func Decode(token string) (Payload, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Payload{}, fmt.Errorf("decode receipt: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode receipt: %w", err)
	}
	return p, nil
}
