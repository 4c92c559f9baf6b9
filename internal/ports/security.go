package ports

type PINHasher interface {
	Hash(pin string) (string, error)
	Compare(hash string, pin string) error
}
