package promotions

import (
	"testing"

	"github.com/openprices/ingest/internal/database"
	"github.com/openprices/ingest/internal/xmlnorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const promosFixture = `<?xml version="1.0"?>
<Root>
  <Promotions>
    <Promotion>
      <PromotionId>1001</PromotionId>
      <PromotionDescription>Buy one get one</PromotionDescription>
      <MinQty>2</MinQty>
      <MaxQty>6</MaxQty>
      <DiscountType>0</DiscountType>
      <DiscountRate>250</DiscountRate>
      <PromotionItems><ItemCode>7290000000001</ItemCode></PromotionItems>
      <PromotionItems><ItemCode>999999</ItemCode></PromotionItems>
      <Clubs><ClubId>17</ClubId></Clubs>
    </Promotion>
    <Promotion>
      <PromotionId>1002</PromotionId>
      <PromotionDescription>Fixed bundle price</PromotionDescription>
      <DiscountType>1</DiscountType>
      <DiscountedPrice>19.90</DiscountedPrice>
    </Promotion>
  </Promotions>
</Root>`

func TestExtractResolvesKnownProductsAndDropsUnknown(t *testing.T) {
	root, err := xmlnorm.Load("x.xml", []byte(promosFixture))
	require.NoError(t, err)

	products := map[database.StoreProductKey]database.StoreProduct{
		{StoreID: 1, Code: "7290000000001"}: {ID: 42, StoreID: 1, Code: "7290000000001"},
	}

	promos := Extract(root, 1, products)
	require.Len(t, promos, 2)

	first := promos[0]
	assert.Equal(t, "1001", first.InternalCode)
	assert.Equal(t, []int64{42}, first.ProductIDs) // the unknown code (999999) is dropped
	assert.Equal(t, 2, first.MinQuantity)
	assert.Equal(t, 6, first.MaxQuantity)
	assert.Equal(t, []string{"17"}, first.ClubIDs)
}

func TestPercentageRateOver100IsNormalized(t *testing.T) {
	root, err := xmlnorm.Load("x.xml", []byte(promosFixture))
	require.NoError(t, err)

	promos := Extract(root, 1, nil)
	assert.Equal(t, database.PriceFunctionPercentage, promos[0].PriceFunction.Kind)
	assert.InDelta(t, 2.5, promos[0].PriceFunction.Value, 0.0001)
}

func TestTotalPricePromotionUsesDiscountedPrice(t *testing.T) {
	root, err := xmlnorm.Load("x.xml", []byte(promosFixture))
	require.NoError(t, err)

	promos := Extract(root, 1, nil)
	second := promos[1]
	assert.Equal(t, "1002", second.InternalCode)
	assert.Equal(t, database.PriceFunctionTotalPrice, second.PriceFunction.Kind)
	assert.InDelta(t, 19.90, second.PriceFunction.Value, 0.0001)
}

func TestExtractNoMinMaxYieldsZero(t *testing.T) {
	root, err := xmlnorm.Load("x.xml", []byte(promosFixture))
	require.NoError(t, err)

	promos := Extract(root, 1, nil)
	assert.Equal(t, 0, promos[1].MinQuantity)
	assert.Equal(t, 0, promos[1].MaxQuantity)
}
