package studio

// AspectRatio is one of the fixed ad dimension presets. The value is passed
// through verbatim to the generation gateway.
type AspectRatio struct {
	Value string
	Label string
}

func AspectRatios() []AspectRatio {
	return []AspectRatio{
		{Value: "1:1", Label: "Square (1:1) - General Social Post"},
		{Value: "9:16", Label: "Portrait (9:16) - Stories & Reels"},
		{Value: "16:9", Label: "Landscape (16:9) - Video & X/Twitter"},
		{Value: "4:5", Label: "Vertical (4:5) - Instagram/Facebook Feed"},
		{Value: "2:3", Label: "Pinterest (2:3)"},
	}
}

func ValidAspectRatio(value string) bool {
	for _, r := range AspectRatios() {
		if r.Value == value {
			return true
		}
	}
	return false
}

// Concept is a preset scene idea the user can pick instead of writing a
// description by hand.
type Concept struct {
	Title       string
	Description string
}

func CreativeConcepts() []Concept {
	return []Concept{
		{
			Title:       "Deconstructed Delight",
			Description: "A visually stunning flat-lay of your food product, deconstructed into its core ingredients (like floating chocolate chips, a swirl of caramel, fresh berries) arranged beautifully on a rustic wooden or marble surface. The lighting is soft and natural.",
		},
		{
			Title:       "Zero-Gravity Treat",
			Description: "The dessert and its various toppings (sprinkles, fruit, sauce) float weightlessly in a minimalist, pastel-colored room. A slow-motion camera pan captures the delicious details from every angle, creating a dreamlike, magical effect.",
		},
		{
			Title:       "Giant Food in the City",
			Description: "A colossal version of your food or beverage product placed in a bustling, iconic city street. Imagine a giant cookie being dunked into a river, or a skyscraper-sized ice cream cone with melting drips down the side.",
		},
		{
			Title:       "Nature's Serving Plate",
			Description: "Your dessert is presented in a breathtaking natural setting. Imagine an ice cream scoop nestled in a blooming lotus flower on a serene pond, or a slice of cake resting on a moss-covered rock in an enchanted forest.",
		},
		{
			Title:       "Stop-Motion Creation",
			Description: "A playful and vibrant scene showing your dessert being magically assembled piece-by-piece in a stop-motion style. Ingredients dance and jump into place on a colorful, patterned background, ending with the perfect final product.",
		},
		{
			Title:       "Flavor Explosion",
			Description: "An extreme close-up, slow-motion shot of the dessert being cracked open or bitten into, causing a beautiful explosion of fillings, powders, or liquid centers. The background is dark and moody to make the colors of the ingredients pop.",
		},
		{
			Title:       "Dessert Drip Symphony",
			Description: "A mesmerizing shot focusing on rich, glossy sauces (chocolate, caramel, berry coulis) being drizzled over the dessert in slow motion. The camera follows the drip as it elegantly coats the surface, emphasizing texture and indulgence.",
		},
	}
}
