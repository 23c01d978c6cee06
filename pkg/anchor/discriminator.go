package anchor

import (
	"crypto/sha256"
	"encoding/hex"
)

// DiscriminatorLength is the size of every Anchor discriminator.
const DiscriminatorLength = 8

// Sighash namespaces.
const (
	NamespaceGlobal  = "global"
	NamespaceAccount = "account"
	NamespaceEvent   = "event"
)

// Discriminator is the 8-byte tag Anchor prefixes to instruction data,
// account data and event payloads.
type Discriminator [DiscriminatorLength]byte

// SighashDiscriminator returns the first 8 bytes of
// sha256(namespace + ":" + name). The name is hashed verbatim.
func SighashDiscriminator(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorLength])
	return d
}

// InstructionDiscriminator returns the selector of the named instruction.
func InstructionDiscriminator(name string) Discriminator {
	return SighashDiscriminator(NamespaceGlobal, name)
}

// AccountDiscriminator returns the tag of the named account type.
func AccountDiscriminator(typeName string) Discriminator {
	return SighashDiscriminator(NamespaceAccount, typeName)
}

// EventDiscriminator returns the tag of the named event.
func EventDiscriminator(name string) Discriminator {
	return SighashDiscriminator(NamespaceEvent, name)
}

// Bytes returns a copy of the discriminator.
func (d Discriminator) Bytes() []byte {
	return append([]byte(nil), d[:]...)
}

func (d Discriminator) String() string {
	return hex.EncodeToString(d[:])
}
