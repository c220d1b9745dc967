package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

type factoryWithPriority[F any] struct {
	Priority int
	Factory  F
}

type registry[F any] struct {
	locker    sync.Mutex
	factories map[reflect.Type]factoryWithPriority[F]
}

func (r *registry[F]) register(priority int, factory F) {
	t := reflect.ValueOf(factory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	r.locker.Lock()
	defer r.locker.Unlock()
	if r.factories == nil {
		r.factories = map[reflect.Type]factoryWithPriority[F]{}
	}
	if _, ok := r.factories[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of type %v", t))
	}
	r.factories[t] = factoryWithPriority[F]{
		Priority: priority,
		Factory:  factory,
	}
}

func (r *registry[F]) list() []F {
	r.locker.Lock()
	var withPriorities []factoryWithPriority[F]
	for _, factory := range r.factories {
		withPriorities = append(withPriorities, factory)
	}
	r.locker.Unlock()

	sort.SliceStable(withPriorities, func(i, j int) bool {
		return withPriorities[i].Priority > withPriorities[j].Priority
	})

	result := make([]F, 0, len(withPriorities))
	for _, item := range withPriorities {
		result = append(result, item.Factory)
	}
	return result
}
