// Package validation содержит примитив цепочки проверок: упорядоченный список
// независимых предикатов, которые выполняются до первой ошибки.
package validation

// Check: одна проверка цепочки. nil означает «проверка пройдена, идём дальше»,
// ошибка прерывает цепочку.
type Check[T any] func(in T) error

// Chain: упорядоченная последовательность проверок перед терминальным обработчиком.
type Chain[T any] []Check[T]

// New собирает цепочку из проверок в заданном порядке.
func New[T any](checks ...Check[T]) Chain[T] {
	return Chain[T](checks)
}

// Then возвращает новую цепочку с добавленными в конец проверками.
func (c Chain[T]) Then(checks ...Check[T]) Chain[T] {
	out := make(Chain[T], 0, len(c)+len(checks))
	out = append(out, c...)
	return append(out, checks...)
}

// Run выполняет проверки по порядку и возвращает первую ошибку.
// Ошибки не агрегируются: после первой неудачи остальные проверки не вызываются.
func (c Chain[T]) Run(in T) error {
	for _, check := range c {
		if check == nil {
			continue
		}
		if err := check(in); err != nil {
			return err
		}
	}
	return nil
}
