package queue

// Queue is a bounded FIFO buffer between a producer goroutine and a
// consumer loop.
type Queue interface {
	Enqueue(item interface{}) error
	Size() int
	ReadAllMessages() []interface{}
	ClearQueue()
}
