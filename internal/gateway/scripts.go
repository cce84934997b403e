package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"transfer-sniper/internal/filters"
	"transfer-sniper/internal/market"
)

// The host keeps live item objects; bids and relists need the original instance, so every
// search registers its results in a page-global map keyed by trade id.
const registry = "window.__sniperItems"

var bucketConstants = map[market.Bucket]string{
	market.BucketPlayer:     "SearchBucket.PLAYER",
	market.BucketStaff:      "SearchBucket.STAFF",
	market.BucketClub:       "SearchBucket.CLUB",
	market.BucketConsumable: "SearchBucket.CONSUMABLE",
}

const controllerExpr = `getAppMain().getRootViewController().currentController.getCurrentViewController().getCurrentController()`

func searchScript(req market.SearchRequest) (string, error) {
	crit, err := json.Marshal(req.Criteria)
	if err != nil {
		return "", fmt.Errorf("encode criteria: %w", err)
	}
	bucket, ok := bucketConstants[req.Bucket]
	if !ok {
		bucket = bucketConstants[market.BucketPlayer]
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	return fmt.Sprintf(`new Promise((resolve) => {
  const criteria = new UTSearchCriteriaDTO();
  Object.assign(criteria, %s);
  const model = new UTBucketedItemSearchViewModel();
  model.searchBucket = %s;
  model.searchFeature = "market";
  model.updateSearchCriteria(criteria);
  services.Item.clearTransferMarketCache();
  services.Item.searchTransferMarket(model.searchCriteria, %d).observe(this, (_, r) => {
    const items = (r.data && r.data.items) || [];
    %s = %s || new Map();
    for (const i of items) %s.set(i._auction.tradeId, i);
    resolve({
      success: !!r.success,
      status: typeof r.status === "number" ? r.status : 0,
      statusText: typeof r.status === "string" ? r.status : "",
      errorCode: r.error && r.error.code ? String(r.error.code) : "",
      items: items.map((i) => ({
        tradeId: i._auction.tradeId,
        buyNowPrice: i._auction.buyNowPrice,
        tradeState: String(i._auction.tradeState || ""),
        expires: i._auction.expires || 0,
        itemId: i.id || 0,
        name: (i._staticData && i._staticData.name) || "",
        rating: i.rating || 0,
      })),
    });
  });
})`, crit, bucket, page, registry, registry, registry), nil
}

func bidScript(tradeID int64, price int) string {
	return fmt.Sprintf(`new Promise((resolve, reject) => {
  const item = %s && %s.get(%d);
  if (!item) { reject(new Error("unknown trade %d")); return; }
  services.Item.bid(item, %d).observe(this, (_, d) => resolve(!!d.success));
})`, registry, registry, tradeID, tradeID, price)
}

func relistScript(tradeID int64, start, buyNow int, duration time.Duration) string {
	return fmt.Sprintf(`new Promise((resolve, reject) => {
  const item = %s && %s.get(%d);
  if (!item) { reject(new Error("unknown trade %d")); return; }
  services.Item.list(item, %d, %d, %d).observe(this, (_, d) => {
    %s.delete(%d);
    resolve(!!d.success);
  });
})`, registry, registry, tradeID, tradeID, start, buyNow, int64(duration/time.Second), registry, tradeID)
}

const pileFullScript = `repositories.Item.isPileFull(ItemPile.TRANSFER)`

const coinsScript = `services.User.getUser().coins.amount`

func pageViewScript(page string) string {
	quoted, _ := json.Marshal(page)
	return fmt.Sprintf(`services.PIN.sendData(PINEventType.PAGE_VIEW, {type: PIN_PAGEVIEW_EVT_TYPE, pgid: %s}), true`, quoted)
}

const currentCriteriaScript = `({...` + controllerExpr + `.viewmodel.searchCriteria})`

const defaultCriteriaScript = `({...` + controllerExpr + `.viewmodel.defaultSearchCriteria})`

const playerDataScript = `(() => {
  const p = ` + controllerExpr + `.viewmodel.playerData;
  return p ? {id: p.id || 0, firstName: p.firstName || "", lastName: p.lastName || "", commonName: p.commonName || "", rating: p.rating || 0} : null;
})()`

// decodeReference maps the player-data payload into a reference snapshot.
func decodeReference(raw []byte) (*filters.ReferenceItem, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var ref filters.ReferenceItem
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("decode player data: %w", err)
	}
	return &ref, nil
}
