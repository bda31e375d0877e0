package pof

import "time"

// PrivacyLevel bounds what a verification result may disclose.
type PrivacyLevel string

const (
	// PrivacyBoolean reveals pass/fail only.
	PrivacyBoolean PrivacyLevel = "boolean"
	// PrivacyThreshold additionally confirms "at least threshold".
	PrivacyThreshold PrivacyLevel = "threshold"
	// PrivacyAggregate may reveal the aggregated value, never
	// individual UTXOs.
	PrivacyAggregate PrivacyLevel = "aggregate"
)

// ValidPrivacyLevel reports whether level is one of the enumerated values.
func ValidPrivacyLevel(level PrivacyLevel) bool {
	switch level {
	case PrivacyBoolean, PrivacyThreshold, PrivacyAggregate:
		return true
	}
	return false
}

// Challenge is a proof-of-funds challenge. Threshold is in satoshis.
type Challenge struct {
	ID         string       `json:"id"`
	Pubkey     string       `json:"pubkey"`
	Message    string       `json:"message"`
	Threshold  int64        `json:"threshold_sats"`
	Privacy    PrivacyLevel `json:"privacy_level"`
	CreatedAt  time.Time    `json:"created_at"`
	ExpiresAt  time.Time    `json:"expires_at"`
	VerifiedAt time.Time    `json:"verified_at,omitzero"`
	Verified   bool         `json:"verified"`
	Proof      *Proof       `json:"proof,omitempty"`
	Result     *Result      `json:"result,omitempty"`
}

// ProofKind selects the verification branch.
type ProofKind string

const (
	// ProofKindSignature is a signed-message proof over the challenge message.
	ProofKindSignature ProofKind = "signature"
	// ProofKindSpend is a PSBT-style proof referencing on-chain inputs.
	ProofKindSpend ProofKind = "spend"
)

// InputRef identifies an on-chain output referenced by a spend proof.
type InputRef struct {
	TxID string `json:"txid"`
	Vout uint32 `json:"vout"`
}

// Proof is the payload submitted against a challenge.
type Proof struct {
	Kind      ProofKind  `json:"kind"`
	Signature string     `json:"signature,omitempty"`
	Inputs    []InputRef `json:"inputs,omitempty"`
}

// Result is a verification outcome clamped to the challenge's privacy
// level: fields above the configured level stay nil and are never
// persisted.
type Result struct {
	Passed         bool   `json:"passed"`
	MeetsThreshold *bool  `json:"meets_threshold,omitempty"`
	Total          *int64 `json:"total_sats,omitempty"`
}
