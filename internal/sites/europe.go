package sites

// europeCountries covers EU/EEA plus UK, CH, NO, IS and neighbors that
// commonly appear in pan-European trials, including the spelling variants
// registries use.
var europeCountries = map[string]bool{
	"Albania": true, "Andorra": true, "Austria": true, "Belarus": true,
	"Belgium": true, "Bosnia and Herzegovina": true, "Bulgaria": true,
	"Croatia": true, "Cyprus": true, "Czechia": true, "Czech Republic": true,
	"Denmark": true, "Estonia": true, "Finland": true, "France": true,
	"Germany": true, "Greece": true, "Hungary": true, "Iceland": true,
	"Ireland": true, "Italy": true, "Kosovo": true, "Latvia": true,
	"Liechtenstein": true, "Lithuania": true, "Luxembourg": true,
	"Malta": true, "Moldova": true, "Monaco": true, "Montenegro": true,
	"Netherlands": true, "North Macedonia": true, "Norway": true,
	"Poland": true, "Portugal": true, "Romania": true, "San Marino": true,
	"Serbia": true, "Slovakia": true, "Slovenia": true, "Spain": true,
	"Sweden": true, "Switzerland": true, "Türkiye": true, "Turkey": true,
	"Ukraine": true, "United Kingdom": true, "UK": true, "England": true,
	"Scotland": true, "Wales": true, "Northern Ireland": true,
}

// IsEuropean reports whether a registry-reported country name falls in the
// European filter set.
func IsEuropean(country string) bool {
	return europeCountries[country]
}
