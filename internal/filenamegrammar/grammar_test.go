package filenamegrammar

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		file    string
		wantOK  bool
		wantTyp FileType
		full    bool
		store   *int
	}{
		{
			name:    "prices with store",
			file:    "Price7290027600007-001-202001101800.xml",
			wantOK:  true,
			wantTyp: TypePrices,
		},
		{
			name:    "full prices",
			file:    "PriceFull7290027600007-001-202001101800.xml",
			wantOK:  true,
			wantTyp: TypePrices,
			full:    true,
		},
		{
			name:    "stores has no store group",
			file:    "Stores7290027600007-202001101800.xml",
			wantOK:  true,
			wantTyp: TypeStores,
		},
		{
			name:    "promo",
			file:    "Promo7290027600007-0042-202001101800.xml",
			wantOK:  true,
			wantTyp: TypePromo,
		},
		{
			name:   "garbage does not match",
			file:   "readme.txt",
			wantOK: false,
		},
		{
			name:   "extension alone is not authoritative",
			file:   "somefile.xml",
			wantOK: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Parse(tc.file)
			if ok != tc.wantOK {
				t.Fatalf("Parse(%q) ok = %v, want %v", tc.file, ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if got.Type != tc.wantTyp {
				t.Errorf("Type = %v, want %v", got.Type, tc.wantTyp)
			}
			if got.Full != tc.full {
				t.Errorf("Full = %v, want %v", got.Full, tc.full)
			}
			if got.ChainID != "7290027600007" {
				t.Errorf("ChainID = %q, want 13-digit id", got.ChainID)
			}
		})
	}
}

func TestParseStoreGroup(t *testing.T) {
	got, ok := Parse("Price7290027600007-042-202001101800.xml")
	if !ok {
		t.Fatal("expected match")
	}
	if got.StoreID == nil || *got.StoreID != 42 {
		t.Fatalf("StoreID = %v, want 42", got.StoreID)
	}
}

func TestTotality(t *testing.T) {
	// A fixture filename either matches with all groups resolved or does not
	// match at all — there is no partial-match state.
	names := []string{
		"Price7290027600007-001-202001101800.xml",
		"not-a-supplier-file.csv",
		"",
		"PromoFull7290027600007-202001101800.xml",
	}
	for _, n := range names {
		match, ok := Parse(n)
		if ok {
			if match.Type == "" || match.ChainID == "" || match.Date == "" || match.Time == "" {
				t.Errorf("Parse(%q) matched but left a group empty: %+v", n, match)
			}
		}
	}
}
