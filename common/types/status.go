package types

// MakerStatus enumerates the persisted states of the Maker-side state
// machine (spec.md §4.4). Values are stable across releases: they are
// serialized to the database, so existing entries must keep decoding after
// new states are appended.
type MakerStatus byte

const (
	MakerStarted MakerStatus = iota
	MakerBtcLockSeen
	MakerBtcLocked
	MakerXmrLockSent
	MakerXmrLocked
	MakerXmrLockProofSent
	MakerEncSigLearned
	MakerBtcRedeemTxPublished
	MakerBtcRedeemed // terminal
	MakerWaitingForCancelTimelock
	MakerCancelTimelockExpired
	MakerBtcCancelled
	MakerBtcRefunded // terminal
	MakerBtcPartiallyRefunded
	MakerXmrRefundable
	MakerXmrRefunded // terminal
	MakerBtcPunishable
	MakerBtcPunished // terminal
	MakerBtcMercyGranted
	MakerBtcMercyPublished
	MakerBtcMercyConfirmed // terminal
	MakerBtcWithholdPublished
	MakerBtcWithholdConfirmed // terminal
	MakerBtcEarlyRefundable
	MakerBtcEarlyRefunded // terminal
	MakerSafelyAborted    // terminal
)

var makerStatusStrings = map[MakerStatus]string{
	MakerStarted:                  "Started",
	MakerBtcLockSeen:              "BtcLockSeen",
	MakerBtcLocked:                "BtcLocked",
	MakerXmrLockSent:              "XmrLockSent",
	MakerXmrLocked:                "XmrLocked",
	MakerXmrLockProofSent:         "XmrLockProofSent",
	MakerEncSigLearned:            "EncSigLearned",
	MakerBtcRedeemTxPublished:     "BtcRedeemTxPublished",
	MakerBtcRedeemed:              "BtcRedeemed",
	MakerWaitingForCancelTimelock: "WaitingForCancelTimelock",
	MakerCancelTimelockExpired:    "CancelTimelockExpired",
	MakerBtcCancelled:             "BtcCancelled",
	MakerBtcRefunded:              "BtcRefunded",
	MakerBtcPartiallyRefunded:     "BtcPartiallyRefunded",
	MakerXmrRefundable:            "XmrRefundable",
	MakerXmrRefunded:              "XmrRefunded",
	MakerBtcPunishable:            "BtcPunishable",
	MakerBtcPunished:              "BtcPunished",
	MakerBtcMercyGranted:          "BtcMercyGranted",
	MakerBtcMercyPublished:        "BtcMercyPublished",
	MakerBtcMercyConfirmed:        "BtcMercyConfirmed",
	MakerBtcWithholdPublished:     "BtcWithholdPublished",
	MakerBtcWithholdConfirmed:     "BtcWithholdConfirmed",
	MakerBtcEarlyRefundable:       "BtcEarlyRefundable",
	MakerBtcEarlyRefunded:         "BtcEarlyRefunded",
	MakerSafelyAborted:            "SafelyAborted",
}

// String implements fmt.Stringer.
func (s MakerStatus) String() string {
	if str, ok := makerStatusStrings[s]; ok {
		return str
	}
	return "Unknown"
}

// IsTerminal reports whether s is one of the Maker machine's absorbing states.
func (s MakerStatus) IsTerminal() bool {
	switch s {
	case MakerBtcRedeemed, MakerBtcRefunded, MakerXmrRefunded, MakerBtcPunished,
		MakerBtcMercyConfirmed, MakerBtcWithholdConfirmed, MakerBtcEarlyRefunded, MakerSafelyAborted:
		return true
	default:
		return false
	}
}

// TakerStatus enumerates the persisted states of the Taker-side state
// machine (spec.md §4.5).
type TakerStatus byte

const (
	TakerStarted TakerStatus = iota
	TakerSetupCompleted
	TakerBtcLockReadyToPublish
	TakerBtcLocked
	TakerXmrLockTransactionCandidate
	TakerXmrLockSeen
	TakerXmrLocked
	TakerEncSigSent
	TakerBtcRedeemed
	TakerXmrRedeemed // terminal
	TakerBtcEarlyRefundPublished
	TakerBtcEarlyRefunded // terminal
	TakerCancelTimelockExpired
	TakerBtcCancelled
	TakerBtcRefundPublished
	TakerBtcRefunded // terminal
	TakerBtcPartialRefundPublished
	TakerBtcPartiallyRefunded // terminal
	TakerBtcAmnestyPublished
	TakerBtcAmnestyConfirmed // terminal
	TakerBtcRefundBurnt      // terminal
	TakerBtcPunished
	TakerSafelyAborted // terminal
)

var takerStatusStrings = map[TakerStatus]string{
	TakerStarted:                      "Started",
	TakerSetupCompleted:               "SetupCompleted",
	TakerBtcLockReadyToPublish:        "BtcLockReadyToPublish",
	TakerBtcLocked:                    "BtcLocked",
	TakerXmrLockTransactionCandidate:  "XmrLockTransactionCandidate",
	TakerXmrLockSeen:                  "XmrLockSeen",
	TakerXmrLocked:                    "XmrLocked",
	TakerEncSigSent:                   "EncSigSent",
	TakerBtcRedeemed:                  "BtcRedeemed",
	TakerXmrRedeemed:                  "XmrRedeemed",
	TakerBtcEarlyRefundPublished:      "BtcEarlyRefundPublished",
	TakerBtcEarlyRefunded:             "BtcEarlyRefunded",
	TakerCancelTimelockExpired:        "CancelTimelockExpired",
	TakerBtcCancelled:                 "BtcCancelled",
	TakerBtcRefundPublished:           "BtcRefundPublished",
	TakerBtcRefunded:                  "BtcRefunded",
	TakerBtcPartialRefundPublished:    "BtcPartialRefundPublished",
	TakerBtcPartiallyRefunded:         "BtcPartiallyRefunded",
	TakerBtcAmnestyPublished:          "BtcAmnestyPublished",
	TakerBtcAmnestyConfirmed:          "BtcAmnestyConfirmed",
	TakerBtcRefundBurnt:               "BtcRefundBurnt",
	TakerBtcPunished:                  "BtcPunished",
	TakerSafelyAborted:                "SafelyAborted",
}

// String implements fmt.Stringer.
func (s TakerStatus) String() string {
	if str, ok := takerStatusStrings[s]; ok {
		return str
	}
	return "Unknown"
}

// IsTerminal reports whether s is one of the Taker machine's absorbing states.
func (s TakerStatus) IsTerminal() bool {
	switch s {
	case TakerXmrRedeemed, TakerBtcEarlyRefunded, TakerBtcRefunded, TakerBtcPartiallyRefunded,
		TakerBtcAmnestyConfirmed, TakerBtcRefundBurnt, TakerSafelyAborted:
		return true
	default:
		return false
	}
}
