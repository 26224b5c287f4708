package storesparser

import (
	"context"
	"testing"

	"github.com/openprices/ingest/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storesFixture = `<?xml version="1.0"?>
<Root>
  <Stores>
    <Store>
      <StoreId>1</StoreId>
      <StoreName>Main Branch</StoreName>
      <City>Tel Aviv</City>
      <Address>1 Example St</Address>
      <SubchainId>1</SubchainId>
      <SubchainName>Example Chain North</SubchainName>
    </Store>
    <Store>
      <StoreId>2</StoreId>
      <StoreName>Other Subchain Branch</StoreName>
      <SubchainId>2</SubchainId>
    </Store>
  </Stores>
</Root>`

func subchainPtr(i int) *int { return &i }

func TestParseFiltersBySubchain(t *testing.T) {
	chain := database.Chain{ID: 10, Name: "Example Chain", SubchainID: subchainPtr(1)}

	result, err := Parse(chain, "Stores7290000000001-202001101800.xml", []byte(storesFixture))
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	assert.Equal(t, 1, result.Candidates[0].StoreID)
	assert.Equal(t, "Main Branch", result.Candidates[0].Name)
	assert.Equal(t, "Example Chain North", result.SubchainName)
}

func TestParseUsesBranchTagForAllowlistedChains(t *testing.T) {
	chain := database.Chain{ID: 10, Name: "מחסני להב"}
	fixture := `<Root><Stores><Branch><StoreId>5</StoreId><StoreName>Lahav</StoreName></Branch></Stores></Root>`

	result, err := Parse(chain, "x.xml", []byte(fixture))
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, 5, result.Candidates[0].StoreID)
}

type fakePersister struct {
	upserted []database.Store
	renamed  string
}

func (f *fakePersister) UpsertStores(ctx context.Context, stores []database.Store) error {
	f.upserted = stores
	return nil
}

func (f *fakePersister) RenameChain(ctx context.Context, chainID int64, name string) error {
	f.renamed = name
	return nil
}

func TestApplyRenamesChainStickily(t *testing.T) {
	chain := database.Chain{ID: 1, Name: "Old Name", SubchainID: subchainPtr(1)}
	result := ParseResult{
		Candidates:   []database.Store{{ChainID: 1, StoreID: 1}},
		SubchainName: "New Canonical Name",
	}

	p := &fakePersister{}
	err := Apply(context.Background(), p, chain, result)
	require.NoError(t, err)
	assert.Equal(t, "New Canonical Name", p.renamed)
	assert.Len(t, p.upserted, 1)
}

func TestApplySkipsRenameWhenUnchanged(t *testing.T) {
	chain := database.Chain{ID: 1, Name: "Same Name"}
	result := ParseResult{SubchainName: "Same Name"}

	p := &fakePersister{}
	err := Apply(context.Background(), p, chain, result)
	require.NoError(t, err)
	assert.Empty(t, p.renamed)
}
