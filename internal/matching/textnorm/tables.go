package textnorm

// SynonymGroup folds every variant onto the canonical term.
type SynonymGroup struct {
	Canonical string
	Variants  []string
}

// Tables is the static language data a Normalizer is built from.
type Tables struct {
	Synonyms  []SynonymGroup
	StopWords []string
}

// French returns the tables used for festival lost-and-found reports.
// Groups are applied in this order.
func French() Tables {
	return Tables{
		Synonyms: []SynonymGroup{
			{Canonical: "téléphone", Variants: []string{"portable", "gsm", "mobile", "cellulaire", "smartphone"}},
			{Canonical: "porte-monnaie", Variants: []string{"portefeuille", "porte feuille", "porte monnaie"}},
			{Canonical: "clef", Variants: []string{"clé", "cles", "clefs", "clé usb", "cle usb"}},
			{Canonical: "sac", Variants: []string{"sacoche", "sac à dos", "sac a dos", "cartable"}},
			{Canonical: "lunettes", Variants: []string{"lunette", "solaire", "sunglasses"}},
			{Canonical: "casque", Variants: []string{"headphones", "écouteurs", "ecouteurs"}},
			{Canonical: "badge", Variants: []string{"pass", "accréditation", "carte"}},
		},
		StopWords: frenchStopWords,
	}
}

var frenchStopWords = []string{
	"le", "la", "les", "un", "une", "des", "du", "de", "d", "et", "en", "à", "au", "aux",
	"pour", "par", "avec", "sans", "sur", "sous", "dans", "chez",
	"ce", "cet", "cette", "ces", "mon", "ma", "mes", "ton", "ta", "tes", "son", "sa", "ses",
	"notre", "nos", "votre", "vos", "leur", "leurs",
	"qui", "que", "quoi", "dont", "où", "ne", "pas", "plus", "moins", "très",
	"a", "as", "ont", "est", "sont", "était", "étaient", "été", "être", "avoir",
	"fait", "faites", "fais", "faire", "on", "il", "elle", "ils", "elles",
	"ceci", "cela", "ça", "là", "ici", "y", "comme", "si", "mais", "ou", "donc", "or", "ni", "car", "se",
	"peu", "beaucoup", "autre", "autres", "même", "mêmes", "chaque", "aucun", "aucune",
	"tout", "tous", "toute", "toutes", "quel", "quelle", "quels", "quelles",
	"ainsi", "après", "avant", "aussi", "bien", "encore", "jamais", "parce", "pendant",
	"puis", "quand", "vers", "voici", "voilà",
}
