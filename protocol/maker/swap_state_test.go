package maker

import (
	"context"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/eigenswap/xmr-btc-swap/backend"
	"github.com/eigenswap/xmr-btc-swap/common/types"
	"github.com/eigenswap/xmr-btc-swap/crypto/adaptor"
	"github.com/eigenswap/xmr-btc-swap/crypto/edscalar"
	mcrypto "github.com/eigenswap/xmr-btc-swap/crypto/monero"
	"github.com/eigenswap/xmr-btc-swap/crypto/secp256k1"
	"github.com/eigenswap/xmr-btc-swap/db"
	"github.com/eigenswap/xmr-btc-swap/net/message"
	protocolpkg "github.com/eigenswap/xmr-btc-swap/protocol"
	"github.com/eigenswap/xmr-btc-swap/protocol/setup"
	"github.com/eigenswap/xmr-btc-swap/txbuilder"
)

func testAddr(t *testing.T, net *chaincfg.Params) btcutil.Address {
	t.Helper()
	k, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	hash := btcutil.Hash160(k.Public().CompressedBytes())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, net)
	require.NoError(t, err)
	return addr
}

func testLockParams(t *testing.T) *txbuilder.LockParams {
	t.Helper()
	a, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	b, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	punish, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	net := &chaincfg.RegressionNetParams
	return &txbuilder.LockParams{
		Network:                 net,
		A:                       a.Public(),
		B:                       b.Public(),
		MakerPunishKey:          punish.Public(),
		MakerRedeemAddr:         testAddr(t, net),
		TakerRefundAddr:         testAddr(t, net),
		LockAmount:              1_000_000,
		LockValue:               1_000_000,
		AmnestyAmount:           50_000,
		FeeRate:                 10,
		CancelTimelock:          144,
		PunishTimelock:          72,
		RemainingRefundTimelock: 288,
	}
}

// fakeBitcoinWallet implements backend.BitcoinWallet with GetRawTransaction
// and StatusOfScript scripted per test, and no-ops everywhere else.
type fakeBitcoinWallet struct {
	rawTxByHash map[chainhash.Hash]*wire.MsgTx
	status      backend.ScriptStatus
}

func (f *fakeBitcoinWallet) NewAddress(ctx context.Context) (btcutil.Address, error) { return nil, nil }
func (f *fakeBitcoinWallet) SignAndFinalize(ctx context.Context, p *psbt.Packet) (*wire.MsgTx, error) {
	return nil, nil
}
func (f *fakeBitcoinWallet) Broadcast(ctx context.Context, tx *wire.MsgTx, label string) (*chainhash.Hash, backend.Subscription, error) {
	return nil, nil, nil
}
func (f *fakeBitcoinWallet) EnsureBroadcasted(ctx context.Context, tx *wire.MsgTx, label string) (*chainhash.Hash, backend.Subscription, error) {
	return nil, nil, nil
}
func (f *fakeBitcoinWallet) SubscribeTo(ctx context.Context, script []byte) (backend.Subscription, error) {
	return nil, nil
}
func (f *fakeBitcoinWallet) StatusOfScript(ctx context.Context, script []byte) (backend.ScriptStatus, error) {
	return f.status, nil
}
func (f *fakeBitcoinWallet) GetRawTransaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, bool, error) {
	tx, ok := f.rawTxByHash[txid]
	return tx, ok, nil
}
func (f *fakeBitcoinWallet) EstimateFee(ctx context.Context, weight int64, amount btcutil.Amount) (btcutil.Amount, error) {
	return 0, nil
}
func (f *fakeBitcoinWallet) Sync(ctx context.Context) error                { return nil }
func (f *fakeBitcoinWallet) Balance(ctx context.Context) (btcutil.Amount, error) { return 0, nil }
func (f *fakeBitcoinWallet) TransactionFee(ctx context.Context, txid chainhash.Hash) (btcutil.Amount, error) {
	return 0, nil
}
func (f *fakeBitcoinWallet) Network() *chaincfg.Params { return &chaincfg.RegressionNetParams }

var _ backend.BitcoinWallet = (*fakeBitcoinWallet)(nil)

// memDB is a minimal in-memory db.Database for driver tests.
type memDB struct {
	mu     sync.Mutex
	states map[types.SwapID]interface{}
}

func newMemDB() *memDB {
	return &memDB{states: make(map[types.SwapID]interface{})}
}

func (d *memDB) InsertLatestState(id types.SwapID, state interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states[id] = state
	return nil
}
func (d *memDB) GetState(id types.SwapID, out interface{}) error { return db.ErrSwapNotFound }
func (d *memDB) InsertPeerID(id types.SwapID, p peer.ID) error   { return nil }
func (d *memDB) GetPeerID(id types.SwapID) (peer.ID, error)      { return "", db.ErrSwapNotFound }
func (d *memDB) InsertBufferedTransferProof(id types.SwapID, proof *db.TransferProof) error {
	return nil
}
func (d *memDB) GetBufferedTransferProof(id types.SwapID) (*db.TransferProof, error) {
	return nil, db.ErrSwapNotFound
}
func (d *memDB) GetMoneroAddressPool(id types.SwapID) (db.MoneroAddressPool, error) { return nil, nil }
func (d *memDB) AppendMoneroAddress(id types.SwapID, address string) error          { return nil }
func (d *memDB) All() ([]db.Record, error)                                          { return nil, nil }
func (d *memDB) Close() error                                                       { return nil }

var _ db.Database = (*memDB)(nil)

func testHandshake(t *testing.T, makerKey, takerKey *secp256k1.PrivateKey) *setup.Handshake {
	t.Helper()
	return &setup.Handshake{
		SwapID:      types.NewSwapID(),
		IdentityKey: makerKey,
		KeysAndProof: &protocolpkg.KeysAndProof{
			BtcSecp256k1KeyPair: makerKey,
		},
		CounterpartyIdentityPub: takerKey.Public(),
		CounterpartyVerified: &protocolpkg.VerifiedKeys{
			Secp256k1PublicKey: takerKey.Public(),
		},
	}
}

// TestRecoverTakerSpendShare exercises the refund-path leak (spec.md
// §4.4): given a signature Maker itself encrypted under Taker's pubkey,
// once Taker's decrypted copy is revealed, Maker must recover exactly
// Taker's own Monero spend-key share from it.
func TestRecoverTakerSpendShare(t *testing.T) {
	makerKey, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	takerKey, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	hs := testHandshake(t, makerKey, takerKey)
	s := &SwapState{hs: hs}

	var msg [32]byte
	copy(msg[:], []byte("full-refund-sighash-for-testing"))

	encSig, err := adaptor.EncSign(makerKey, takerKey.Public(), msg)
	require.NoError(t, err)

	revealed := adaptor.Decrypt(encSig, takerKey)

	share, err := s.recoverTakerSpendShare(revealed, encSig)
	require.NoError(t, err)

	wantScalar, err := edscalar.FromSecp256k1(takerKey)
	require.NoError(t, err)
	want := mcrypto.NewPrivateSpendKeyFromScalar(wantScalar)
	require.Equal(t, want.Bytes(), share.Bytes())
}

// TestMakerHalfOfWitnessRoundTrip confirms makerHalfOfWitness reads back
// exactly the signature FinalizeRefundBranchWitness places at the sigA
// position.
func TestMakerHalfOfWitnessRoundTrip(t *testing.T) {
	makerKey, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	takerKey, err := secp256k1.GenerateKey()
	require.NoError(t, err)

	var msg [32]byte
	copy(msg[:], []byte("cancel-branch-sighash-for-test!"))
	makerSig, err := adaptor.Sign(makerKey, msg)
	require.NoError(t, err)
	takerSig, err := adaptor.Sign(takerKey, msg)
	require.NoError(t, err)

	witness := txbuilder.FinalizeRefundBranchWitness(
		txbuilder.EncodeSignature(makerSig), txbuilder.EncodeSignature(takerSig), []byte("script"))

	got, err := makerHalfOfWitness(witness)
	require.NoError(t, err)
	require.Equal(t, makerSig.R, got.R)
	require.Equal(t, makerSig.S, got.S)
}

// TestLockDestinationsTipSplit checks the developer-tip carve-out: with no
// tip address configured no tip destination is added, and with a tip ratio
// whose tip is at/above DeveloperTipMinimum the joint-address amount is
// reduced by exactly the tip.
func TestLockDestinationsTipSplit(t *testing.T) {
	hs := &setup.Handshake{JointMoneroAddress: &mcrypto.Address{}}

	s := &SwapState{hs: hs, xmrAmount: 1_000_000_000_000}
	dests := s.lockDestinations()
	require.Len(t, dests, 1)
	require.Equal(t, uint64(1_000_000_000_000), dests[0].Amount.Uint64())

	s.deps.TipAddress = &mcrypto.Address{}
	s.deps.TipRatio = 0.1
	dests = s.lockDestinations()
	require.Len(t, dests, 2)
	tip := dests[0].Amount.Uint64()
	require.GreaterOrEqual(t, tip, uint64(DeveloperTipMinimum))
	require.Equal(t, s.xmrAmount, tip+dests[1].Amount.Uint64())
}

// TestSetStatusPersistsAndResumeRestores checks the persist/Resume round
// trip a crashed-and-restarted daemon depends on.
func TestSetStatusPersistsAndResumeRestores(t *testing.T) {
	makerKey, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	takerKey, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	hs := testHandshake(t, makerKey, takerKey)

	fakeDB := newMemDB()
	s := New(Deps{DB: fakeDB}, hs, 500)
	require.NoError(t, s.setStatus(types.MakerXmrLockSent))
	s.xmrLockTxID = "deadbeef"
	s.restoreHeight = 12345
	require.NoError(t, s.persist())

	resumed := Resume(Deps{DB: fakeDB}, hs, 500, persistedState{
		Status:        s.status,
		RestoreHeight: s.restoreHeight,
		XMRLockTxID:   s.xmrLockTxID,
	})
	require.Equal(t, types.MakerXmrLockSent, resumed.Status())
	require.Equal(t, "deadbeef", resumed.xmrLockTxID)
	require.Equal(t, uint64(12345), resumed.restoreHeight)
}

// TestTakerRedeemEncSigAndSpendSharePersistAcrossResume covers Comment 3's
// crash-resume gap: takerRedeemEncSig (needed by publishRedeem) and
// takerSpendShare (needed by sweepRecoveredMonero) must both survive a
// persist/Resume round trip instead of resuming nil.
func TestTakerRedeemEncSigAndSpendSharePersistAcrossResume(t *testing.T) {
	makerKey, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	takerKey, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	hs := testHandshake(t, makerKey, takerKey)

	var sigHash [32]byte
	copy(sigHash[:], []byte("tx-redeem-sighash-for-resuming!"))
	encSig, err := adaptor.EncSign(takerKey, makerKey.Public(), sigHash)
	require.NoError(t, err)

	scalar, err := edscalar.FromSecp256k1(takerKey)
	require.NoError(t, err)
	spendShare := mcrypto.NewPrivateSpendKeyFromScalar(scalar)

	fakeDB := newMemDB()
	s := New(Deps{DB: fakeDB}, hs, 500)
	s.takerRedeemEncSig = encSig
	s.takerSpendShare = spendShare
	require.NoError(t, s.persist())

	saved, ok := fakeDB.states[hs.SwapID].(persistedState)
	require.True(t, ok)
	require.NotEmpty(t, saved.TakerRedeemEncSig)
	require.NotEmpty(t, saved.TakerSpendShare)

	resumed := Resume(Deps{DB: fakeDB}, hs, 500, saved)
	require.NotNil(t, resumed.takerRedeemEncSig)
	require.Equal(t, encSig.R, resumed.takerRedeemEncSig.R)
	require.Equal(t, encSig.RPrime, resumed.takerRedeemEncSig.RPrime)
	require.NotNil(t, resumed.takerSpendShare)
	require.Equal(t, spendShare.Bytes(), resumed.takerSpendShare.Bytes())
}

// TestPublishPunishPrefersRefundOnResume covers Comment 2's crash-resume
// gap: step() can dispatch straight into publishPunish from a resumed
// MakerBtcPunishable status, skipping watchCancelOutput's one-shot refund
// check entirely. publishPunish must re-run that check itself so a refund
// Taker published before the crash is never missed in favor of punishing.
func TestPublishPunishPrefersRefundOnResume(t *testing.T) {
	makerKey, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	takerKey, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	hs := testHandshake(t, makerKey, takerKey)
	hs.LockParams = testLockParams(t)

	outs, err := setup.DeriveOutpoints(hs.LockParams)
	require.NoError(t, err)
	partialRefundTx, cancelWitnessScript, err := txbuilder.BuildPartialRefundTx(hs.LockParams, outs.Cancel)
	require.NoError(t, err)
	sigHash, err := txbuilder.SigHash(partialRefundTx, cancelWitnessScript, outs.Cancel.Value)
	require.NoError(t, err)

	encSig, err := adaptor.EncSign(makerKey, takerKey.Public(), sigHash)
	require.NoError(t, err)
	revealed := adaptor.Decrypt(encSig, takerKey)
	dummySig, err := adaptor.Sign(takerKey, sigHash)
	require.NoError(t, err)
	partialRefundTx.TxIn[0].Witness = txbuilder.FinalizeRefundBranchWitness(
		txbuilder.EncodeSignature(revealed), txbuilder.EncodeSignature(dummySig), cancelWitnessScript)

	hs.Sigs.MakerPartialRefundEncSig = encSig

	fakeWallet := &fakeBitcoinWallet{
		rawTxByHash: map[chainhash.Hash]*wire.MsgTx{partialRefundTx.TxHash(): partialRefundTx},
	}

	s := &SwapState{
		deps:   Deps{Bitcoin: fakeWallet, DB: newMemDB()},
		hs:     hs,
		status: types.MakerBtcPunishable,
	}

	next, err := s.step(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.MakerBtcPartiallyRefunded, next)

	wantScalar, err := edscalar.FromSecp256k1(takerKey)
	require.NoError(t, err)
	want := mcrypto.NewPrivateSpendKeyFromScalar(wantScalar)
	require.NotNil(t, s.takerSpendShare)
	require.Equal(t, want.Bytes(), s.takerSpendShare.Bytes())
}

// TestHandleCooperativeRedeemRequest covers all three outcomes spec.md
// §4.6 distinguishes: wrong swap, not yet punished, and fulfilled.
func TestHandleCooperativeRedeemRequest(t *testing.T) {
	makerKey, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	takerKey, err := secp256k1.GenerateKey()
	require.NoError(t, err)
	hs := testHandshake(t, makerKey, takerKey)
	s := &SwapState{hs: hs, status: types.MakerBtcRedeemTxPublished}

	stream := &captureStream{}
	err = s.HandleCooperativeRedeemRequest(IncomingCooperativeRedeemRequest{
		Req:    &message.CooperativeRedeemRequest{SwapID: types.NewSwapID()},
		Stream: stream,
	})
	require.NoError(t, err)
	resp := stream.lastResponse(t)
	require.False(t, resp.Fulfilled)
	require.Equal(t, message.RejectedNoSwapFound, resp.RejectReason)

	stream = &captureStream{}
	err = s.HandleCooperativeRedeemRequest(IncomingCooperativeRedeemRequest{
		Req:    &message.CooperativeRedeemRequest{SwapID: hs.SwapID},
		Stream: stream,
	})
	require.NoError(t, err)
	resp = stream.lastResponse(t)
	require.False(t, resp.Fulfilled)
	require.Equal(t, message.RejectedSwapNotPunished, resp.RejectReason)

	s.status = types.MakerBtcPunished
	s.xmrLockTxID = "txid"
	s.lockTxKey = "key"
	stream = &captureStream{}
	err = s.HandleCooperativeRedeemRequest(IncomingCooperativeRedeemRequest{
		Req:    &message.CooperativeRedeemRequest{SwapID: hs.SwapID},
		Stream: stream,
	})
	require.NoError(t, err)
	resp = stream.lastResponse(t)
	require.True(t, resp.Fulfilled)
	sa := makerKey.Bytes()
	require.Equal(t, sa[:], resp.SA)
	require.Equal(t, "txid", resp.TransferProof.TxID)
}

// captureStream is a net.Stream that only needs to capture what was sent.
type captureStream struct {
	sent message.Message
}

func (c *captureStream) Send(msg message.Message) error    { c.sent = msg; return nil }
func (c *captureStream) Receive() (message.Message, error) { return nil, nil }
func (c *captureStream) Close() error                      { return nil }

func (c *captureStream) lastResponse(t *testing.T) *message.CooperativeRedeemResponse {
	t.Helper()
	resp, ok := c.sent.(*message.CooperativeRedeemResponse)
	require.True(t, ok)
	return resp
}
