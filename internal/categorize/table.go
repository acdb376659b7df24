package categorize

// DefaultTable is used when the feeds config carries no categories.
// Economy precedes politics so central bank news lands in economy.
func DefaultTable() []Rule {
	return []Rule{
		{Label: "economy", Keywords: []string{
			"экономика", "ставка", "цб", "рубль", "инфляция", "бюджет", "биржа", "нефть",
			"economy", "inflation", "interest rate", "central bank", "stock market",
		}},
		{Label: "politics", Keywords: []string{
			"политика", "правительство", "выборы", "президент", "парламент", "госдума", "министр",
			"politics", "government", "election", "parliament", "minister",
		}},
		{Label: "technology", Keywords: []string{
			"технологии", "искусственный интеллект", "программирование", "смартфон", "нейросет",
			"technology", "artificial intelligence", "software", "startup", "smartphone",
		}},
		{Label: "sports", Keywords: []string{
			"спорт", "футбол", "хоккей", "теннис", "олимпи", "чемпионат",
			"sports", "football", "hockey", "tennis", "olympic", "championship",
		}},
		{Label: "science", Keywords: []string{
			"наука", "исследование", "ученые", "учёные", "космос",
			"science", "research", "scientists", "space",
		}},
		{Label: "entertainment", Keywords: []string{
			"кино", "фильм", "сериал", "музыка", "концерт",
			"movie", "film", "series", "music", "concert",
		}},
		{Label: "culture", Keywords: []string{
			"культура", "театр", "выставка", "музей", "литература",
			"culture", "theatre", "theater", "exhibition", "museum",
		}},
	}
}
