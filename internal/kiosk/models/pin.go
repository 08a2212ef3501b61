package models

import "time"

// PinCredential is the device-local quick-access secret. Only the derived
// hash and its salt are stored; the raw PIN never touches disk. A credential
// may exist only after the staff session was authenticated at least once
// since the last reset.
type PinCredential struct {
	Hash      []byte    `json:"hash"`
	Salt      []byte    `json:"salt"`
	CreatedAt time.Time `json:"created_at"`
}
