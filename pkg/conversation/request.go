package conversation

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/harunnryd/frontdesk/pkg/llm"
	"github.com/tidwall/gjson"
)

// Request is one inbound conversational turn from the voice platform.
type Request struct {
	CallID         string
	ProviderCallID string
	CallerNumber   string
	// ToNumber is the dialed number that identifies the tenant.
	ToNumber string
	Messages []llm.Message
}

// ParseRequest reads the voice platform's chat-completions style body.
func ParseRequest(body []byte) (Request, error) {
	if !gjson.ValidBytes(body) {
		return Request{}, fmt.Errorf("request body is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	req := Request{
		CallID:         root.Get("call.id").String(),
		ProviderCallID: root.Get("call.phoneCallProviderId").String(),
		CallerNumber:   root.Get("call.customer.number").String(),
		ToNumber:       ExtractToNumber(root),
	}
	if raw := root.Get("messages"); raw.IsArray() {
		if err := json.Unmarshal([]byte(raw.Raw), &req.Messages); err != nil {
			return Request{}, fmt.Errorf("decode messages: %w", err)
		}
	}
	return req, nil
}

// ExtractToNumber finds the dialed number: the first phoneNumbers entry when
// present, then call.toNumber, then a top-level toNumber.
func ExtractToNumber(root gjson.Result) string {
	call := root.Get("call")
	if numbers := call.Get("phoneNumbers"); numbers.IsArray() && len(numbers.Array()) > 0 {
		first := numbers.Get("0")
		if n := first.Get("destination.number").String(); n != "" {
			return n
		}
		return first.Get("number").String()
	}
	if n := call.Get("toNumber").String(); n != "" {
		return n
	}
	return root.Get("toNumber").String()
}
