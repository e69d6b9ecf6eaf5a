package models

import "strings"

// Team represents an NBA franchise
type Team struct {
	ID           int    `json:"id" db:"id"` // provider team id
	Abbreviation string `json:"abbreviation" db:"abbreviation"`
	FullName     string `json:"full_name" db:"full_name"`
	City         string `json:"city" db:"city"`
	Name         string `json:"name" db:"name"`
	Conference   string `json:"conference" db:"conference"`
	Division     string `json:"division" db:"division"`
	Slug         string `json:"slug" db:"slug"`
}

// TeamInput is a team as returned by the BallDontLie API
type TeamInput struct {
	ID           int    `json:"id"`
	Abbreviation string `json:"abbreviation"`
	City         string `json:"city"`
	Conference   string `json:"conference"`
	Division     string `json:"division"`
	FullName     string `json:"full_name"`
	Name         string `json:"name"`
}

// ToTeam converts TeamInput (from API) to Team model
func (ti *TeamInput) ToTeam() Team {
	return Team{
		ID:           ti.ID,
		Abbreviation: CanonicalAbbreviation(ti.Abbreviation),
		FullName:     ti.FullName,
		City:         ti.City,
		Name:         ti.Name,
		Conference:   ti.Conference,
		Division:     ti.Division,
		Slug:         TeamSlug(ti.Name),
	}
}

// TeamSlug derives the lowercase hyphenated slug from a team nickname
func TeamSlug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// NBATeams is the league's 30 franchises with BallDontLie ids
var NBATeams = []Team{
	{1, "ATL", "Atlanta Hawks", "Atlanta", "Hawks", "East", "Southeast", "hawks"},
	{2, "BOS", "Boston Celtics", "Boston", "Celtics", "East", "Atlantic", "celtics"},
	{3, "BKN", "Brooklyn Nets", "Brooklyn", "Nets", "East", "Atlantic", "nets"},
	{4, "CHA", "Charlotte Hornets", "Charlotte", "Hornets", "East", "Southeast", "hornets"},
	{5, "CHI", "Chicago Bulls", "Chicago", "Bulls", "East", "Central", "bulls"},
	{6, "CLE", "Cleveland Cavaliers", "Cleveland", "Cavaliers", "East", "Central", "cavaliers"},
	{7, "DAL", "Dallas Mavericks", "Dallas", "Mavericks", "West", "Southwest", "mavericks"},
	{8, "DEN", "Denver Nuggets", "Denver", "Nuggets", "West", "Northwest", "nuggets"},
	{9, "DET", "Detroit Pistons", "Detroit", "Pistons", "East", "Central", "pistons"},
	{10, "GSW", "Golden State Warriors", "Golden State", "Warriors", "West", "Pacific", "warriors"},
	{11, "HOU", "Houston Rockets", "Houston", "Rockets", "West", "Southwest", "rockets"},
	{12, "IND", "Indiana Pacers", "Indiana", "Pacers", "East", "Central", "pacers"},
	{13, "LAC", "LA Clippers", "LA", "Clippers", "West", "Pacific", "clippers"},
	{14, "LAL", "Los Angeles Lakers", "Los Angeles", "Lakers", "West", "Pacific", "lakers"},
	{15, "MEM", "Memphis Grizzlies", "Memphis", "Grizzlies", "West", "Southwest", "grizzlies"},
	{16, "MIA", "Miami Heat", "Miami", "Heat", "East", "Southeast", "heat"},
	{17, "MIL", "Milwaukee Bucks", "Milwaukee", "Bucks", "East", "Central", "bucks"},
	{18, "MIN", "Minnesota Timberwolves", "Minnesota", "Timberwolves", "West", "Northwest", "timberwolves"},
	{19, "NOP", "New Orleans Pelicans", "New Orleans", "Pelicans", "West", "Southwest", "pelicans"},
	{20, "NYK", "New York Knicks", "New York", "Knicks", "East", "Atlantic", "knicks"},
	{21, "OKC", "Oklahoma City Thunder", "Oklahoma City", "Thunder", "West", "Northwest", "thunder"},
	{22, "ORL", "Orlando Magic", "Orlando", "Magic", "East", "Southeast", "magic"},
	{23, "PHI", "Philadelphia 76ers", "Philadelphia", "76ers", "East", "Atlantic", "76ers"},
	{24, "PHX", "Phoenix Suns", "Phoenix", "Suns", "West", "Pacific", "suns"},
	{25, "POR", "Portland Trail Blazers", "Portland", "Trail Blazers", "West", "Northwest", "trail-blazers"},
	{26, "SAC", "Sacramento Kings", "Sacramento", "Kings", "West", "Pacific", "kings"},
	{27, "SAS", "San Antonio Spurs", "San Antonio", "Spurs", "West", "Southwest", "spurs"},
	{28, "TOR", "Toronto Raptors", "Toronto", "Raptors", "East", "Atlantic", "raptors"},
	{29, "UTA", "Utah Jazz", "Utah", "Jazz", "West", "Northwest", "jazz"},
	{30, "WAS", "Washington Wizards", "Washington", "Wizards", "East", "Southeast", "wizards"},
}

// abbreviationAliases maps Basketball-Reference codes onto league abbreviations
var abbreviationAliases = map[string]string{
	"BRK": "BKN",
	"CHO": "CHA",
	"PHO": "PHX",
	"NO":  "NOP",
	"NY":  "NYK",
	"GS":  "GSW",
	"SA":  "SAS",
	"WSH": "WAS",
}

// CanonicalAbbreviation normalizes alternate team codes
func CanonicalAbbreviation(abbr string) string {
	abbr = strings.ToUpper(strings.TrimSpace(abbr))
	if canon, ok := abbreviationAliases[abbr]; ok {
		return canon
	}
	return abbr
}
