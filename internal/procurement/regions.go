package procurement

import "strings"

// Region is a regional office (kanwil) in the fixed reporting registry.
type Region struct {
	Code string
	Name string
}

// Label renders the display label, e.g. "08001 - KANTOR WILAYAH LAMPUNG".
func (r Region) Label() string {
	return r.Code + " - KANTOR WILAYAH " + r.Name
}

// Matches reports whether a stored kanwil name refers to this region. Stored names
// carry an ordinal prefix ("16 - 08001 - KANTOR WILAYAH LAMPUNG"), so the match is on
// the space-delimited code.
func (r Region) Matches(name string) bool {
	return strings.Contains(" "+strings.TrimSpace(name)+" ", " "+r.Code+" ")
}

// SentraProduksi lists the production-center regions in reporting order.
var SentraProduksi = []Region{
	{Code: "08001", Name: "LAMPUNG"},
	{Code: "21001", Name: "SULSEL SULBAR"},
	{Code: "20001", Name: "SULTRA"},
	{Code: "12001", Name: "DI YOGYAKARTA"},
	{Code: "09001", Name: "DKI JAKARTA BANTEN"},
	{Code: "23001", Name: "N.T.B"},
	{Code: "13001", Name: "JATIM"},
	{Code: "10001", Name: "JABAR"},
	{Code: "01001", Name: "ACEH"},
	{Code: "06001", Name: "SUMSEL"},
	{Code: "11001", Name: "JATENG"},
}

// Lainnya lists the remaining regions in reporting order.
var Lainnya = []Region{
	{Code: "15001", Name: "KALTIM KALTARA"},
	{Code: "25001", Name: "MALUKU MALUT"},
	{Code: "26001", Name: "PAPUA PABAR"},
	{Code: "02001", Name: "SUMUT"},
	{Code: "04001", Name: "SUMBAR"},
	{Code: "17001", Name: "KALTENG"},
	{Code: "16001", Name: "KALSEL"},
	{Code: "14001", Name: "KALBAR"},
	{Code: "18001", Name: "SULUT GORONTALO"},
	{Code: "05001", Name: "JAMBI"},
	{Code: "19001", Name: "SULTENG"},
	{Code: "24001", Name: "N.T.T"},
	{Code: "03001", Name: "RIAU DAN KEPRI"},
	{Code: "22001", Name: "BALI"},
	{Code: "07001", Name: "BENGKULU"},
}

// FindRegion resolves a stored or display kanwil name to its registry entry.
func FindRegion(name string) (Region, bool) {
	for _, group := range [][]Region{SentraProduksi, Lainnya} {
		for _, region := range group {
			if region.Matches(name) {
				return region, true
			}
		}
	}
	return Region{}, false
}

// RegionLabel normalizes a kanwil name to its registry label, or returns the trimmed
// name unchanged when it is not registered.
func RegionLabel(name string) string {
	if region, ok := FindRegion(name); ok {
		return region.Label()
	}
	return strings.TrimSpace(name)
}

// Labels returns the display labels of regions in order.
func Labels(regions []Region) []string {
	out := make([]string, len(regions))
	for i, region := range regions {
		out[i] = region.Label()
	}
	return out
}
