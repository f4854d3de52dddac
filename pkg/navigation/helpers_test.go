package navigation_test

import (
	"errors"
	"strconv"

	"ex-paimon/pkg/navigation"
)

var errProvider = errors.New("provider exploded")

// numberedProvider serves pages whose body is their own index.
func numberedProvider(pages int) navigation.ContentProvider {
	return func(page int) (*navigation.Content, error) {
		if page < 0 || page >= pages {
			return nil, nil
		}
		return &navigation.Content{Body: strconv.Itoa(page)}, nil
	}
}

// failingProvider behaves like numberedProvider except on failAt.
func failingProvider(pages int, failAt int, panics bool) navigation.ContentProvider {
	base := numberedProvider(pages)
	return func(page int) (*navigation.Content, error) {
		if page == failAt {
			if panics {
				panic("page " + strconv.Itoa(page))
			}
			return nil, errProvider
		}
		return base(page)
	}
}

func bookmark(name string, pages int, known bool) navigation.Bookmark {
	count := 0
	if known {
		count = pages
	}
	return navigation.Bookmark{Name: name, Provider: numberedProvider(pages), PageCount: count}
}
