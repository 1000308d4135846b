package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ParseSorts reads command arguments of the form
//
//	col [asc|desc] [, col [asc|desc]]...
//
// Commas may stand alone or be attached to either word.
func ParseSorts(args []string) ([]Sort, error) {
	var sorts []Sort
	for _, word := range splitWords(args) {
		switch strings.ToLower(word) {
		case string(Asc), string(Desc):
			if len(sorts) == 0 {
				return nil, fmt.Errorf("'%s' must follow a column name", word)
			}
			sorts[len(sorts)-1].Direction = Direction(strings.ToLower(word))

		default:
			sorts = append(sorts, Sort{Column: word, Direction: Asc})
		}
	}
	return sorts, nil
}

// ParsePagination reads "limit [offset]" from command arguments.
// No arguments yields the zero Pagination.
func ParsePagination(args []string) (Pagination, error) {
	words := splitWords(args)
	if len(words) > 2 {
		return Pagination{}, errors.New("expected at most a limit and an offset")
	}

	var (
		p   Pagination
		err error
	)
	if len(words) > 0 {
		if p.Limit, err = parseCount("limit", words[0]); err != nil {
			return Pagination{}, err
		}
	}
	if len(words) > 1 {
		if p.Offset, err = parseCount("offset", words[1]); err != nil {
			return Pagination{}, err
		}
	}
	return p, nil
}

// ParseColumns reads a comma and/or space separated column list.
func ParseColumns(args []string) []string {
	return splitWords(args)
}

func parseCount(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: '%s' is not a number", name, s)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: must be greater than or equal to 0", name)
	}
	return n, nil
}

func splitWords(args []string) []string {
	var words []string
	for _, arg := range args {
		words = append(words, strings.FieldsFunc(arg, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})...)
	}
	return words
}
