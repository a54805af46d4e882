package main

import (
	"reflect"
	"sync"
)

type cacheMapType map[string]interface{}

// Cache remembers the last value of every attribute and forwards real
// changes to the dispatcher, so late websocket clients can be brought up to
// date.
type Cache struct {
	cacheMap   cacheMapType
	cacheMutex sync.Mutex
	dispatcher *EventDispatcher
}

func newCache(dispatcher *EventDispatcher) *Cache {
	return &Cache{cacheMap: make(cacheMapType), dispatcher: dispatcher}
}

// Changed implements Notifier.
func (c *Cache) Changed(attr Attribute, value interface{}) {
	c.update(string(attr), value)
}

func (c *Cache) update(name string, data interface{}) {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()

	old, ok := c.cacheMap[name]
	if !ok || !reflect.DeepEqual(old, data) {
		if c.dispatcher != nil {
			c.dispatcher.broadcastEvent(name, data)
		}
		c.cacheMap[name] = data
	}
}

func (c *Cache) get(name string) interface{} {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()

	return c.cacheMap[name]
}

func (c *Cache) dump() cacheMapType {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()

	n := make(cacheMapType)
	for k, v := range c.cacheMap {
		n[k] = v
	}
	return n
}

// seed loads the current value of every attribute without broadcasting.
func (c *Cache) seed(v Ventilator) {
	values := make(cacheMapType)
	for _, attr := range allAttributes {
		values[string(attr)] = readAttribute(v, attr)
	}

	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()

	for k, val := range values {
		if _, ok := c.cacheMap[k]; !ok {
			c.cacheMap[k] = val
		}
	}
}
