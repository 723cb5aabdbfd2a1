// Package message defines the wire types exchanged over the setup protocol
// and the channels layered above it (spec.md §4.3, §4.6). Every message is
// encoded as a one-byte type tag followed by its JSON body; cryptographic
// material that doesn't marshal to JSON on its own (curve points, DLEQ
// proofs, adaptor signatures) is carried as []byte fields, which
// encoding/json writes as base64 strings, holding the output of the owning
// package's MarshalBinary.
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/eigenswap/xmr-btc-swap/common/types"
)

// Message is implemented by every wire type exchanged over a swap stream.
type Message interface {
	Type() byte
	Encode() ([]byte, error)
	String() string
}

// Message type tags, one byte each, prepended to the JSON body.
const (
	Unknown byte = iota
	SwapInitiateType
	SetupResponseType
	LockPSBTType
	MakerPresigsType
	TakerPresigsType
	TransferProofType
	EncryptedSignatureType
	CooperativeRedeemRequestType
	CooperativeRedeemResponseType
)

// TypeToString returns a human-readable name for a message type tag, used in
// logging.
func TypeToString(t byte) string {
	switch t {
	case SwapInitiateType:
		return "SwapInitiate"
	case SetupResponseType:
		return "SetupResponse"
	case LockPSBTType:
		return "LockPSBT"
	case MakerPresigsType:
		return "MakerPresigs"
	case TakerPresigsType:
		return "TakerPresigs"
	case TransferProofType:
		return "TransferProof"
	case EncryptedSignatureType:
		return "EncryptedSignature"
	case CooperativeRedeemRequestType:
		return "CooperativeRedeemRequest"
	case CooperativeRedeemResponseType:
		return "CooperativeRedeemResponse"
	default:
		return "Unknown"
	}
}

// ErrUnknownMessageType is returned by DecodeMessage when the leading type
// byte doesn't match any known message.
var ErrUnknownMessageType = errors.New("message: unknown message type")

// DecodeMessage parses a type-tagged, JSON-bodied message as produced by any
// Message's Encode method.
func DecodeMessage(b []byte) (Message, error) {
	if len(b) < 1 {
		return nil, errors.New("message: empty input")
	}

	t, body := b[0], b[1:]
	var msg Message
	switch t {
	case SwapInitiateType:
		msg = new(SwapInitiate)
	case SetupResponseType:
		msg = new(SetupResponse)
	case LockPSBTType:
		msg = new(LockPSBT)
	case MakerPresigsType:
		msg = new(MakerPresigs)
	case TakerPresigsType:
		msg = new(TakerPresigs)
	case TransferProofType:
		msg = new(TransferProofMsg)
	case EncryptedSignatureType:
		msg = new(EncryptedSignatureMsg)
	case CooperativeRedeemRequestType:
		msg = new(CooperativeRedeemRequest)
	case CooperativeRedeemResponseType:
		msg = new(CooperativeRedeemResponse)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageType, t)
	}

	if err := json.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", TypeToString(t), err)
	}
	return msg, nil
}

func encode(t byte, msg interface{}) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", TypeToString(t), err)
	}
	return append([]byte{t}, body...), nil
}

// FeeSchedule is the Bitcoin fee policy and transaction-graph timelocks a
// Maker or Taker declares during setup (spec.md §3.3, §4.3).
type FeeSchedule struct {
	FeeRatePerVByte         uint64 `json:"feeRatePerVByte"`
	CancelTimelock          uint32 `json:"cancelTimelock"`
	PunishTimelock          uint32 `json:"punishTimelock"`
	RemainingRefundTimelock uint32 `json:"remainingRefundTimelock"`
}

// SwapInitiate is setup message 0 (Taker → Maker): the Taker's Bitcoin key,
// Monero secret-share commitments and their cross-curve DLEQ proof, the
// Monero private view key half, a refund address, and the declared network
// and fee schedule.
type SwapInitiate struct {
	SwapID          types.SwapID   `json:"swapId"`
	ProtocolVersion string         `json:"protocolVersion"`
	Network         types.Network  `json:"network"`
	B               []byte         `json:"b"`
	SBtcB           []byte         `json:"sBtcB"`
	SXmrB           []byte         `json:"sXmrB"`
	DLEQProofB      []byte         `json:"dleqProofB"`
	ViewKeyB        []byte         `json:"viewKeyB"`
	RefundAddress   string         `json:"refundAddress"`
	Fees            FeeSchedule    `json:"fees"`
}

func (m *SwapInitiate) Type() byte          { return SwapInitiateType }
func (m *SwapInitiate) Encode() ([]byte, error) { return encode(SwapInitiateType, m) }
func (m *SwapInitiate) String() string {
	return fmt.Sprintf("SwapInitiate{SwapID: %s, Network: %s}", m.SwapID, m.Network)
}

// Validate checks SwapInitiate's protocol version parses and its refund
// address and DLEQ proof bytes are present.
func (m *SwapInitiate) Validate() error {
	if _, err := semver.NewVersion(m.ProtocolVersion); err != nil {
		return fmt.Errorf("invalid protocol version: %w", err)
	}
	if m.RefundAddress == "" {
		return errors.New("missing refund address")
	}
	if len(m.DLEQProofB) == 0 {
		return errors.New("missing dleq proof")
	}
	return nil
}

// SetupResponse is setup message 1 (Maker → Taker): the Maker's mirrored
// commitments, redeem/punish addresses, the declared amnesty amount, and
// the agreed fee schedule.
type SetupResponse struct {
	SwapID          types.SwapID  `json:"swapId"`
	ProtocolVersion string        `json:"protocolVersion"`
	A               []byte        `json:"a"`
	SBtcA           []byte        `json:"sBtcA"`
	SXmrA           []byte        `json:"sXmrA"`
	DLEQProofA      []byte        `json:"dleqProofA"`
	ViewKeyA        []byte        `json:"viewKeyA"`
	RedeemAddress   string        `json:"redeemAddress"`
	PunishAddress   string        `json:"punishAddress"`
	AmnestyAmount   uint64        `json:"amnestyAmount"`
	Fees            FeeSchedule   `json:"fees"`
}

func (m *SetupResponse) Type() byte              { return SetupResponseType }
func (m *SetupResponse) Encode() ([]byte, error)  { return encode(SetupResponseType, m) }
func (m *SetupResponse) String() string {
	return fmt.Sprintf("SetupResponse{SwapID: %s}", m.SwapID)
}

// Validate checks SetupResponse's required fields are present.
func (m *SetupResponse) Validate() error {
	if _, err := semver.NewVersion(m.ProtocolVersion); err != nil {
		return fmt.Errorf("invalid protocol version: %w", err)
	}
	if m.RedeemAddress == "" || m.PunishAddress == "" {
		return errors.New("missing redeem or punish address")
	}
	if len(m.DLEQProofA) == 0 {
		return errors.New("missing dleq proof")
	}
	return nil
}

// LockPSBT is setup message 2 (Taker → Maker): the funding PSBT for
// tx_lock, not yet fully signed.
type LockPSBT struct {
	SwapID types.SwapID `json:"swapId"`
	PSBT   []byte       `json:"psbt"`
}

func (m *LockPSBT) Type() byte             { return LockPSBTType }
func (m *LockPSBT) Encode() ([]byte, error) { return encode(LockPSBTType, m) }
func (m *LockPSBT) String() string {
	return fmt.Sprintf("LockPSBT{SwapID: %s, len(PSBT): %d}", m.SwapID, len(m.PSBT))
}

// Validate checks the PSBT payload is non-empty.
func (m *LockPSBT) Validate() error {
	if len(m.PSBT) == 0 {
		return errors.New("missing psbt bytes")
	}
	return nil
}

// MakerPresigs is setup message 3 (Maker → Taker): the Maker's direct
// signature on tx_cancel plus adaptor-encrypted signatures for the two
// refund-path transactions that spend from tx_cancel.
type MakerPresigs struct {
	SwapID                   types.SwapID `json:"swapId"`
	CancelSignature          []byte       `json:"cancelSignature"`
	FullRefundEncSig         []byte       `json:"fullRefundEncSig"`
	PartialRefundEncSig      []byte       `json:"partialRefundEncSig"`
}

func (m *MakerPresigs) Type() byte             { return MakerPresigsType }
func (m *MakerPresigs) Encode() ([]byte, error) { return encode(MakerPresigsType, m) }
func (m *MakerPresigs) String() string {
	return fmt.Sprintf("MakerPresigs{SwapID: %s}", m.SwapID)
}

// Validate checks every presignature field is present.
func (m *MakerPresigs) Validate() error {
	if len(m.CancelSignature) == 0 || len(m.FullRefundEncSig) == 0 || len(m.PartialRefundEncSig) == 0 {
		return errors.New("missing one or more maker presignatures")
	}
	return nil
}

// TakerPresigs is setup message 4 (Taker → Maker): the Taker's direct
// signature on tx_cancel, and direct signatures on every transaction the
// Taker alone must pre-authorize (tx_punish, tx_early_refund, and the
// amnesty-path transactions).
type TakerPresigs struct {
	SwapID                 types.SwapID `json:"swapId"`
	CancelSignature        []byte       `json:"cancelSignature"`
	PunishSignature        []byte       `json:"punishSignature"`
	EarlyRefundSignature   []byte       `json:"earlyRefundSignature"`
	RefundAmnestySignature []byte       `json:"refundAmnestySignature,omitempty"`
	RefundBurnSignature    []byte       `json:"refundBurnSignature,omitempty"`
	FinalAmnestySignature  []byte       `json:"finalAmnestySignature,omitempty"`
}

func (m *TakerPresigs) Type() byte             { return TakerPresigsType }
func (m *TakerPresigs) Encode() ([]byte, error) { return encode(TakerPresigsType, m) }
func (m *TakerPresigs) String() string {
	return fmt.Sprintf("TakerPresigs{SwapID: %s}", m.SwapID)
}

// Validate checks every unconditionally-required presignature field is
// present, and that the three amnesty-path signatures (tx_refund_amnesty,
// tx_refund_burn, tx_final_amnesty) are either all present or all absent —
// they apply as a group only when the swap negotiated a non-zero amnesty
// amount (spec.md §3.4's zero-amnesty edge case), which the caller checks
// against the negotiated amount separately.
func (m *TakerPresigs) Validate() error {
	if len(m.CancelSignature) == 0 || len(m.PunishSignature) == 0 || len(m.EarlyRefundSignature) == 0 {
		return errors.New("missing one or more taker presignatures")
	}
	amnestyPresent := len(m.RefundAmnestySignature) > 0 || len(m.RefundBurnSignature) > 0 || len(m.FinalAmnestySignature) > 0
	amnestyComplete := len(m.RefundAmnestySignature) > 0 && len(m.RefundBurnSignature) > 0 && len(m.FinalAmnestySignature) > 0
	if amnestyPresent && !amnestyComplete {
		return errors.New("incomplete amnesty-path presignatures")
	}
	return nil
}

// TransferProofMsg carries the XMR lock transaction's id, height and a
// single transfer key over the transfer-proof channel (spec.md §4.6), sent
// Maker → Taker exactly once per swap. TxKey is the key for the
// joint-address destination only; when the lock transfer also pays a
// developer tip, the tip destination's key is not carried.
type TransferProofMsg struct {
	SwapID types.SwapID `json:"swapId"`
	TxID   string       `json:"txId"`
	TxKey  string       `json:"txKey"`
	Height uint64       `json:"height"`
}

func (m *TransferProofMsg) Type() byte             { return TransferProofType }
func (m *TransferProofMsg) Encode() ([]byte, error) { return encode(TransferProofType, m) }
func (m *TransferProofMsg) String() string {
	return fmt.Sprintf("TransferProof{SwapID: %s, TxID: %s}", m.SwapID, m.TxID)
}

// EncryptedSignatureMsg carries Taker's adaptor-encrypted signature for
// tx_redeem's Taker-half over the encrypted-signature channel
// (spec.md §4.6), sent Taker → Maker once per swap. The sender retries
// until a stream send succeeds or its context ends; Maker sends no
// acknowledgment message in reply.
type EncryptedSignatureMsg struct {
	SwapID types.SwapID `json:"swapId"`
	EncSig []byte       `json:"encSig"`
}

func (m *EncryptedSignatureMsg) Type() byte             { return EncryptedSignatureType }
func (m *EncryptedSignatureMsg) Encode() ([]byte, error) { return encode(EncryptedSignatureType, m) }
func (m *EncryptedSignatureMsg) String() string {
	return fmt.Sprintf("EncryptedSignature{SwapID: %s}", m.SwapID)
}

// CooperativeRedeemRequest is sent Taker → Maker over the
// cooperative-redeem channel (spec.md §4.6) to ask Maker to reveal s_a
// directly rather than have Taker recover it from a published tx_redeem.
type CooperativeRedeemRequest struct {
	SwapID types.SwapID `json:"swapId"`
}

func (m *CooperativeRedeemRequest) Type() byte             { return CooperativeRedeemRequestType }
func (m *CooperativeRedeemRequest) Encode() ([]byte, error) { return encode(CooperativeRedeemRequestType, m) }
func (m *CooperativeRedeemRequest) String() string {
	return fmt.Sprintf("CooperativeRedeemRequest{SwapID: %s}", m.SwapID)
}

// RejectReason enumerates why a Maker declined a cooperative-redeem
// request.
type RejectReason string

const (
	RejectedNoSwapFound     RejectReason = "noSwapFound"
	RejectedSwapNotPunished RejectReason = "swapNotPunished"
	RejectedRefused         RejectReason = "refused"
)

// CooperativeRedeemResponse answers a CooperativeRedeemRequest with either
// the revealed secret and XMR lock transfer proof, or a rejection reason.
type CooperativeRedeemResponse struct {
	SwapID         types.SwapID       `json:"swapId"`
	Fulfilled      bool               `json:"fulfilled"`
	SA             []byte             `json:"sA,omitempty"`
	TransferProof  *TransferProofMsg  `json:"transferProof,omitempty"`
	RejectReason   RejectReason       `json:"rejectReason,omitempty"`
}

func (m *CooperativeRedeemResponse) Type() byte { return CooperativeRedeemResponseType }
func (m *CooperativeRedeemResponse) Encode() ([]byte, error) {
	return encode(CooperativeRedeemResponseType, m)
}
func (m *CooperativeRedeemResponse) String() string {
	return fmt.Sprintf("CooperativeRedeemResponse{SwapID: %s, Fulfilled: %t}", m.SwapID, m.Fulfilled)
}
