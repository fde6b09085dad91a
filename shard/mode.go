package shard

// OpenMode selects how a writable shard is opened.
type OpenMode int

const (
	// CreateOrOpen opens for read/write, creating the shard if none exists.
	CreateOrOpen OpenMode = 1
	// Create creates a new shard and fails if one exists.
	Create OpenMode = 2
	// CreateOrOverwrite overwrites an existing shard or creates a new one.
	CreateOrOverwrite OpenMode = 3
	// Open opens for read/write and fails if no shard exists.
	Open OpenMode = 4
)

// Validate reports ErrInvalidArgument for unknown modes.
func (m OpenMode) Validate() error {
	switch m {
	case CreateOrOpen, Create, CreateOrOverwrite, Open:
		return nil
	default:
		return Errorf(ErrInvalidArgument, "unknown open mode %d", int(m))
	}
}

func (m OpenMode) String() string {
	switch m {
	case CreateOrOpen:
		return "create-or-open"
	case Create:
		return "create"
	case CreateOrOverwrite:
		return "create-or-overwrite"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}
