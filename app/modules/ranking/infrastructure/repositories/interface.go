package rankingdb

// Repository bundles the ranking stores. Every method takes a bun.IDB so the
// service decides the transaction boundary.
//
// Error semantics:
//   - ErrNotFound: Record does not exist
//   - ErrNoRowsAffected: UPDATE matched no rows (conditional transitions)
//   - Other errors: Infrastructure failures (DB connection, query errors)
type Repository interface {
	TierRepository
	WeekRepository
	StandingRepository
	GroupRepository
	SnapshotRepository
	UserRepository
}

// Impl composes the per-table repositories into a Repository.
type Impl struct {
	TierRepository
	WeekRepository
	StandingRepository
	GroupRepository
	SnapshotRepository
	UserRepository
}

// NewRepository returns the Postgres-backed Repository.
func NewRepository() Repository {
	return &Impl{
		TierRepository:     NewTierRepo(),
		WeekRepository:     NewWeekRepo(),
		StandingRepository: NewStandingRepo(),
		GroupRepository:    NewGroupRepo(),
		SnapshotRepository: NewSnapshotRepo(),
		UserRepository:     NewUserRepo(),
	}
}
