package packstore

import (
	"os"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setavenger/sozudb/internal/coinpack"
	"github.com/setavenger/sozudb/internal/types"
)

func testConfig(t *testing.T) Config {
	return Config{
		Dir:         t.TempDir(),
		SectorCount: 8,
		SectorSizes: []int{512, 1024},
	}
}

func openStore(t *testing.T, cfg Config, final KeyValueStore) *LayeredPackStore {
	t.Helper()
	s, err := Open(cfg, final)
	require.NoError(t, err)
	require.NoError(t, s.Initialize())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func packWithCoin(a *coinpack.Arena, layer int, sector uint32, seed byte) coinpack.CoinPack {
	var h chainhash.Hash
	h[0] = seed
	op := types.Outpoint{TxID: h, Index: uint32(seed)}
	c := coinpack.NewCoin(a, &op, false,
		[]types.CoinEvent{types.ProductionOf(3)}, types.NewPayload(1000, 0, []byte{0x51}))
	return coinpack.Empty(a, layer, sector).WithExtraCoin(a, c)
}

func TestInitializeIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	s := openStore(t, cfg, nil)

	for layer := 0; layer < s.LayerCount(); layer++ {
		for sector := uint32(0); sector < cfg.SectorCount; sector++ {
			p, err := s.Read(layer, sector)
			require.NoError(t, err)
			assert.Equal(t, coinpack.HeaderSize, p.SizeInBytes())
		}
	}

	a := coinpack.NewArena(1 << 12)
	require.NoError(t, s.Write(packWithCoin(a, 0, 3, 1)))
	require.NoError(t, s.Initialize())

	p, err := s.Read(0, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CoinCount())
}

func TestReadRejectsUninitializedSector(t *testing.T) {
	s, err := Open(testConfig(t), nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Read(0, 0)
	assert.ErrorIs(t, err, ErrCorruptedSector)
}

func TestReadRejectsUnknownVersionAndMisplacedPack(t *testing.T) {
	s := openStore(t, testConfig(t), nil)

	s.layers[0].sector(1)[5] = 9
	_, err := s.Read(0, 1)
	assert.ErrorIs(t, err, ErrUnknownVersion)

	coinpack.InitHeader(s.layers[1].sector(2), 1, 5)
	_, err = s.Read(1, 2)
	assert.ErrorIs(t, err, ErrCorruptedSector)
}

func TestWriteEnforcesBudgetAndCoordinates(t *testing.T) {
	s := openStore(t, testConfig(t), nil)
	a := coinpack.NewArena(1 << 14)

	p := coinpack.Empty(a, 0, 0)
	for i := byte(0); i < 20; i++ {
		p = p.WithExtraCoin(a, packWithCoin(a, 0, 0, i).CoinAt(coinpack.HeaderSize))
	}
	require.Greater(t, p.SizeInBytes(), s.SectorBudget(0))
	assert.ErrorIs(t, s.Write(p), ErrPackTooLarge)

	assert.ErrorIs(t, s.Write(coinpack.Empty(a, 2, 0)), ErrBadCoordinates)
	assert.ErrorIs(t, s.Write(coinpack.Empty(a, 0, 8)), ErrBadCoordinates)
}

func TestFinalTierReadsEmptyWhenAbsent(t *testing.T) {
	s := openStore(t, testConfig(t), NewMemoryKeyValueStore())
	require.Equal(t, 3, s.LayerCount())
	require.Equal(t, 2, s.FixedLayerCount())

	p, err := s.Read(2, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, p.CoinCount())
	assert.Equal(t, 2, p.LayerIndex())
	assert.Equal(t, uint32(4), p.SectorIndex())

	a := coinpack.NewArena(1 << 12)
	require.NoError(t, s.Write(packWithCoin(a, 2, 4, 7), packWithCoin(a, 0, 4, 8)))
	p, err = s.Read(2, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CoinCount())
}

func TestMultiPackWriteLeavesJournalEmpty(t *testing.T) {
	cfg := testConfig(t)
	s := openStore(t, cfg, nil)
	a := coinpack.NewArena(1 << 12)

	require.NoError(t, s.Write(packWithCoin(a, 0, 1, 1), packWithCoin(a, 1, 1, 2)))

	fi, err := os.Stat(JournalPath(cfg.Dir))
	require.NoError(t, err)
	assert.Zero(t, fi.Size())

	for layer := 0; layer < 2; layer++ {
		p, err := s.Read(layer, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, p.CoinCount())
	}
}

func journalImage(color uint8, packs ...coinpack.CoinPack) []byte {
	var buf []byte
	for i, p := range packs {
		start := len(buf)
		buf = append(buf, p...)
		coinpack.CoinPack(buf[start:]).SetWriteStamp(color, uint8(len(packs)-i))
	}
	return buf
}

func TestRecoverReplaysCompleteJournal(t *testing.T) {
	cfg := testConfig(t)
	s, err := Open(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s.Initialize())

	a := coinpack.NewArena(1 << 12)
	image := journalImage(7, packWithCoin(a, 0, 2, 1), packWithCoin(a, 1, 2, 2))
	require.NoError(t, s.journal.write(image))
	require.NoError(t, s.Close())

	s = openStore(t, cfg, nil)
	require.NoError(t, s.Recover())

	for layer := 0; layer < 2; layer++ {
		p, err := s.Read(layer, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, p.CoinCount(), "layer %d", layer)
	}
	assert.Equal(t, uint8(8), s.writeColor)

	left, err := s.journal.read()
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRecoverDiscardsTornJournal(t *testing.T) {
	cfg := testConfig(t)
	s := openStore(t, cfg, nil)
	a := coinpack.NewArena(1 << 12)

	image := journalImage(3, packWithCoin(a, 0, 2, 1), packWithCoin(a, 1, 2, 2))
	second := packWithCoin(a, 1, 2, 2).SizeInBytes()
	require.NoError(t, s.journal.write(image[:len(image)-second]))

	require.NoError(t, s.Recover())
	for layer := 0; layer < 2; layer++ {
		p, err := s.Read(layer, 2)
		require.NoError(t, err)
		assert.Zero(t, p.CoinCount())
	}
	left, err := s.journal.read()
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestParseJournal(t *testing.T) {
	a := coinpack.NewArena(1 << 12)

	packs, err := ParseJournal(nil)
	require.NoError(t, err)
	assert.Empty(t, packs)

	image := journalImage(1, packWithCoin(a, 0, 0, 1), packWithCoin(a, 1, 0, 2), coinpack.Empty(a, 0, 3))
	packs, err = ParseJournal(image)
	require.NoError(t, err)
	require.Len(t, packs, 3)
	assert.Equal(t, uint8(1), packs[2].WriteCount())

	first := packWithCoin(a, 0, 0, 1)
	mixed := journalImage(1, first, packWithCoin(a, 1, 0, 2))
	coinpack.CoinPack(mixed[first.SizeInBytes():]).SetWriteStamp(2, 1)
	_, err = ParseJournal(mixed)
	assert.ErrorIs(t, err, ErrTornJournal)

	_, err = ParseJournal(image[:coinpack.HeaderSize-1])
	assert.ErrorIs(t, err, ErrTornJournal)
}

func TestStats(t *testing.T) {
	s := openStore(t, testConfig(t), nil)
	a := coinpack.NewArena(1 << 12)

	p := packWithCoin(a, 0, 5, 1).WithExtraOutpointSig(a, 42)
	require.NoError(t, s.Write(p, packWithCoin(a, 0, 6, 2)))

	st, err := s.Stats(0)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Sectors)
	assert.Equal(t, 2, st.Coins)
	assert.Equal(t, 1, st.OutpointSigs)
	assert.Equal(t, p.SizeInBytes(), st.FullestSector)
	assert.Equal(t, 512, st.Budget)
}
