package cloudinit

import "encoding/json"

func marshalIndented(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
