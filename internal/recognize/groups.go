// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package recognize

// knownGroups are release groups matched exactly (case-insensitively) at
// the trailing or leading bracket position of a title.
var knownGroups = []string{
	// Chinese PT site groups.
	"CHD", "CHDBits", "CHDPAD", "CHDTV", "CHDWEB",
	"HDC", "HDChina", "HDCTV",
	"LeagueHD", "LeagueTV", "LeagueWEB", "LemonHD",
	"MTeam", "MTeamTV", "MPAD",
	"OurBits", "OurTV", "FLTTH", "iLoveTV", "iLoveHD",
	"PTer", "PTerWEB", "PTerDIY",
	"PTHome", "PTHweb",
	"FRDS", "HHWEB", "ADWeb", "CMCT", "CMCTV", "beAst", "WiKi", "TLF",
	"HDSky", "HDS", "HDSWEB", "TTG", "NGB", "QHstudIo",
	"FFans", "FHDMv", "SGXT", "HDArea", "AGSVWEB", "Audies", "HDH", "HDHWEB",

	// Anime fansub groups.
	"ANi", "LoliHouse", "VCB-Studio", "UHA-WINGS", "Sakurato", "SweetSub",
	"DMG", "FLsnow", "KTXP", "Nekomoe kissaten", "SubsPlease", "Erai-raws",

	// International groups.
	"BeyondHD", "FraMeSToR", "FLUX", "NTb", "NTG", "HONE", "SPARKS",
	"KiNGS", "EVO", "PSA", "TBS", "Tigole", "ViSiON", "YIFY", "YTS",
	"RARBG", "CMRG", "EDITH", "SMURF", "TEPES", "playWEB", "BYNDR",
	"HiFi", "DON", "EbP", "CtrlHD", "ZQ", "W4NK3R", "SuccessfulCrab",
	"GalaxyRG", "ETHEL", "AMIABLE", "GECKOS", "ROVERS", "DRONES",
}
