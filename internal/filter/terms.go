package filter

// Built-in term lists. Deployments extend or replace these through the
// confusable override file and custom Option lists; the defaults keep the
// server usable out of the box.

var defaultOffensiveTerms = []string{
	"anal", "arsehole", "asshole", "bastard", "bellend", "bitch", "blowjob",
	"bollocks", "boner", "bullshit", "clit", "cock", "coon", "cunt", "dick",
	"dickhead", "dildo", "douche", "dyke", "faggot", "fuck", "fucker",
	"fucking", "handjob", "jackass", "jerkoff", "jizz", "kike", "motherfucker",
	"nigga", "nigger", "paki", "penis", "pussy", "retard", "rimjob", "shit",
	"shithead", "slut", "spastic", "tranny", "twat", "wanker", "whore",
}

var defaultWhitelistTerms = []string{
	"analysis", "analyst", "analog", "analogue", "arsenal", "assassin",
	"assault", "assemble", "assembly", "assess", "assignment", "assist",
	"associate", "assume", "bassist", "canal", "circumstance", "class",
	"classic", "cockatoo", "cockpit", "cocktail", "dickens", "dickinson",
	"grape", "grass", "hancock", "harass", "hitchcock", "matsushita",
	"mishit", "pass", "passage", "peacock", "penistone", "pushit",
	"scunthorpe", "sheath", "shiitake", "shitake", "therapist", "twatham",
}
