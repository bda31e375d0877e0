package btcsig

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

func newKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	return priv
}

func randomDigest(t *testing.T) []byte {
	t.Helper()
	digest := make([]byte, 32)
	if _, err := rand.Read(digest); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return digest
}

func TestVerifyECDSA(t *testing.T) {
	priv := newKey(t)
	digest := randomDigest(t)
	sig := ecdsa.Sign(priv, digest)

	pubkey := priv.PubKey().SerializeCompressed()
	if !VerifyECDSA(pubkey, digest, sig.Serialize()) {
		t.Fatal("valid signature rejected")
	}

	other := randomDigest(t)
	if VerifyECDSA(pubkey, other, sig.Serialize()) {
		t.Fatal("signature accepted for wrong digest")
	}

	foreign := newKey(t).PubKey().SerializeCompressed()
	if VerifyECDSA(foreign, digest, sig.Serialize()) {
		t.Fatal("signature accepted for wrong key")
	}

	if VerifyECDSA(pubkey, digest, []byte("not-der")) {
		t.Fatal("garbage signature accepted")
	}
}

func TestVerifySchnorr(t *testing.T) {
	priv := newKey(t)
	digest := randomDigest(t)
	sig, err := schnorr.Sign(priv, digest)
	if err != nil {
		t.Fatalf("schnorr.Sign: %v", err)
	}

	xonly := schnorr.SerializePubKey(priv.PubKey())
	if !VerifySchnorr(xonly, digest, sig.Serialize()) {
		t.Fatal("valid schnorr signature rejected")
	}
	if VerifySchnorr(xonly, randomDigest(t), sig.Serialize()) {
		t.Fatal("schnorr signature accepted for wrong digest")
	}
}

func TestVerifyDispatchesOnKeyLength(t *testing.T) {
	priv := newKey(t)
	digest := randomDigest(t)

	der := ecdsa.Sign(priv, digest).Serialize()
	if !Verify(priv.PubKey().SerializeCompressed(), digest, der) {
		t.Fatal("33-byte key should verify via ECDSA")
	}

	schnorrSig, err := schnorr.Sign(priv, digest)
	if err != nil {
		t.Fatalf("schnorr.Sign: %v", err)
	}
	if !Verify(schnorr.SerializePubKey(priv.PubKey()), digest, schnorrSig.Serialize()) {
		t.Fatal("32-byte key should verify via Schnorr")
	}

	if Verify([]byte{0x02, 0x03}, digest, der) {
		t.Fatal("unsupported key length accepted")
	}
}

func TestVerifySignedMessageCompact(t *testing.T) {
	priv := newKey(t)
	message := "hodlxxi proof-of-funds abc threshold=100000 nonce=deadbeef"

	sig := ecdsa.SignCompact(priv, MessageDigest(message), true)
	encoded := base64.StdEncoding.EncodeToString(sig)

	pubkey := priv.PubKey().SerializeCompressed()
	if !VerifySignedMessage(pubkey, message, encoded) {
		t.Fatal("valid signed message rejected")
	}
	if VerifySignedMessage(pubkey, message+" tampered", encoded) {
		t.Fatal("tampered message accepted")
	}

	foreign := newKey(t).PubKey().SerializeCompressed()
	if VerifySignedMessage(foreign, message, encoded) {
		t.Fatal("signed message accepted for wrong key")
	}
}

func TestVerifySignedMessageDERFallback(t *testing.T) {
	priv := newKey(t)
	message := "fallback format"

	der := ecdsa.Sign(priv, MessageDigest(message)).Serialize()

	pubkey := priv.PubKey().SerializeCompressed()
	if !VerifySignedMessage(pubkey, message, hex.EncodeToString(der)) {
		t.Fatal("valid DER hex signature rejected")
	}
	if VerifySignedMessage(pubkey, message, "zz-not-a-signature") {
		t.Fatal("garbage signature accepted")
	}
}
