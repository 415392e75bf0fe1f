package catalog

// ChooseKeeper picks the most complete entry among duplicates sharing a
// normalized name. Priority: has a price, then a non-default pack quantity,
// then a conversion category, then the lowest id.
func ChooseKeeper(group []Entry) Entry {
	keeper := group[0]
	for _, e := range group[1:] {
		if moreComplete(e, keeper) {
			keeper = e
		}
	}
	return keeper
}

func moreComplete(a, b Entry) bool {
	if a.HasAnyPrice() != b.HasAnyPrice() {
		return a.HasAnyPrice()
	}
	aPack := a.PackQty != 0 && a.PackQty != 1.0
	bPack := b.PackQty != 0 && b.PackQty != 1.0
	if aPack != bPack {
		return aPack
	}
	if (a.ConversionCategory != "") != (b.ConversionCategory != "") {
		return a.ConversionCategory != ""
	}
	return a.ID < b.ID
}
