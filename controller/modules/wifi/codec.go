package wifi

import "encoding/json"

func encodeCredentials(c credentials) ([]byte, error) {
	return json.Marshal(c)
}

func decodeCredentials(raw []byte, c *credentials) error {
	return json.Unmarshal(raw, c)
}
