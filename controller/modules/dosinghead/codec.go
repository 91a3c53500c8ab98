package dosinghead

import "encoding/json"

func encodeCalibration(c calibration) ([]byte, error) {
	return json.Marshal(c)
}

func decodeCalibration(raw []byte, c *calibration) error {
	return json.Unmarshal(raw, c)
}
