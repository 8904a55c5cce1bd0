package location

// override pins a city the geocoder gets wrong or cannot find. An empty
// State matches any state code.
type override struct {
	City    string
	State   string
	Country string
	Result  string
}

var overrides = []override{
	{City: "Ramat Hasharon", Country: "Israel", Result: "Ramat-Hasharon"},
	{City: "Varna", Country: "Bulgaria", Result: "Varna"},
	{City: "Suncheon City", Country: "South Korea", Result: "Jeollanam-do"},
	{City: "Kennedy Town", State: "HK Island", Country: "Hong Kong", Result: "Hong Kong Island"},
	// Misspelled in marketplace data.
	{City: "Scarborouugh", State: "Ontario", Country: "Canada", Result: "Ontario"},
}

func lookupOverride(city, state string) (country, resolved string, ok bool) {
	for _, o := range overrides {
		if o.City != city {
			continue
		}
		if o.State != "" && o.State != state {
			continue
		}
		return o.Country, o.Result, true
	}
	return "", "", false
}
