package main

import (
	"fmt"
	"strconv"

	"garnet/internal/db"
)

// seedIndexKey persists the seed cursor so repeated sessions keep generating
// fresh keys.
const seedIndexKey = "__cli_seed_index__"

var kvPairs = [][2]string{
	{"apple", "artichoke"},
	{"banana", "broccoli"},
	{"cherry", "cabbage"},
	{"durian", "daikon"},
	{"elderberry", "eggplant"},
	{"fig", "fennel"},
	{"grapefruit", "ginger"},
	{"honeydew", "horseradish"},
	{"imbe", "ivygourd"},
	{"jackfruit", "jicama"},
	{"kiwi", "kale"},
	{"lime", "leek"},
	{"mango", "mushroom"},
	{"nectarine", "nopale"},
	{"orange", "okra"},
	{"peach", "peas"},
	{"quince", "quinoa"},
	{"raspberry", "radish"},
	{"strawberry", "spinach"},
	{"tangerine", "tomato"},
	{"ugni", "ube"},
	{"voavanga", "vanilla"},
	{"watermelon", "watercress"},
	{"ximenia", "xanthan"},
	{"yuzu", "yam"},
	{"zarzamora", "zucchini"},
}

// seed inserts x numbered copies of every sample pair, resuming the key
// numbering from where the last seed run stopped.
func seed(store *db.DB, x int) {
	seedIndex := 0
	if val, err := store.Get([]byte(seedIndexKey)); err == nil {
		if idx, err := strconv.Atoi(string(val)); err == nil {
			seedIndex = idx
		}
	}

	count := 0
	startIndex := seedIndex
	for _, pair := range kvPairs {
		for i := 0; i < x; i++ {
			key := fmt.Sprintf("%s%d", pair[0], seedIndex+i)
			value := fmt.Sprintf("%s%d", pair[1], seedIndex+i)
			if err := store.Put([]byte(key), []byte(value)); err != nil {
				fmt.Printf("seed error: %v\n", err)
				return
			}
			count++
		}
	}
	seedIndex += x

	if err := store.Put([]byte(seedIndexKey), []byte(strconv.Itoa(seedIndex))); err != nil {
		fmt.Printf("warning: failed to persist seed index: %v\n", err)
	}

	fmt.Printf("seeded %d entries (%d * %d, index %d-%d)\n", count, len(kvPairs), x, startIndex, seedIndex-1)
}
