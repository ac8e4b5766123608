package rtms

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Signature computes the handshake signature the RTMS endpoints verify:
// hex(HMAC-SHA256(secret, "clientID,meetingUUID,streamID")).
func Signature(clientID, clientSecret, meetingUUID, streamID string) string {
	mac := hmac.New(sha256.New, []byte(clientSecret))
	mac.Write([]byte(fmt.Sprintf("%s,%s,%s", clientID, meetingUUID, streamID)))
	return hex.EncodeToString(mac.Sum(nil))
}
