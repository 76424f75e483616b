package service

import (
	"context"
	"sync"

	"github.com/mohammed-shakir/city-indicators-api/internal/recordstore"
	"github.com/mohammed-shakir/city-indicators-api/internal/warehouse"
)

type fakeRecords struct {
	mu       sync.Mutex
	many     map[recordstore.Table][]recordstore.Record
	first    map[recordstore.Table]*recordstore.Record
	err      error
	formulas map[recordstore.Table][]string
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		many:     map[recordstore.Table][]recordstore.Record{},
		first:    map[recordstore.Table]*recordstore.Record{},
		formulas: map[recordstore.Table][]string{},
	}
}

func (f *fakeRecords) FetchMany(_ context.Context, t recordstore.Table, formula string) ([]recordstore.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formulas[t] = append(f.formulas[t], formula)
	if f.err != nil {
		return nil, f.err
	}
	return f.many[t], nil
}

func (f *fakeRecords) FetchFirst(_ context.Context, t recordstore.Table, formula string) (*recordstore.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formulas[t] = append(f.formulas[t], formula)
	if f.err != nil {
		return nil, f.err
	}
	return f.first[t], nil
}

func (f *fakeRecords) seen(t recordstore.Table) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.formulas[t]...)
}

type fakeWarehouse struct {
	mu      sync.Mutex
	tables  map[string]*warehouse.Table
	errs    map[string]error
	queries []warehouse.Query
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{tables: map[string]*warehouse.Table{}, errs: map[string]error{}}
}

func (f *fakeWarehouse) Query(_ context.Context, q warehouse.Query) (*warehouse.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if err := f.errs[q.Name]; err != nil {
		return nil, err
	}
	if t, ok := f.tables[q.Name]; ok {
		return t, nil
	}
	return &warehouse.Table{}, nil
}

func (f *fakeWarehouse) executed(name string) []warehouse.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []warehouse.Query
	for _, q := range f.queries {
		if q.Name == name {
			out = append(out, q)
		}
	}
	return out
}

func rec(id string, fields recordstore.Fields) recordstore.Record {
	return recordstore.Record{ID: id, Fields: fields}
}

func recp(id string, fields recordstore.Fields) *recordstore.Record {
	r := rec(id, fields)
	return &r
}
