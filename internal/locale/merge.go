package locale

// Merge reconciles a controller-reported locale into table.
//
// The first row whose name equals incoming.Name has its status replaced by
// the normalised form of incoming.Status. A status other than on/off is
// stored as StatusUnknown and reported as OutcomeInvalidStatus.
//
// If no row matches, Merge returns a zero Locale with OutcomeMiss and the
// table is left exactly as it was. The table never grows.
//
// Merge mutates table in place and is not safe for concurrent use; Store
// wraps it with a lock.
func Merge(table Table, incoming Locale) MergeResult {
	idx := table.Index(incoming.Name)
	if idx < 0 {
		return MergeResult{RawStatus: string(incoming.Status), Outcome: OutcomeMiss}
	}

	previous := table[idx].Status
	status, ok := NormalizeStatus(string(incoming.Status))
	table[idx].Status = status

	res := MergeResult{
		Locale:    table[idx],
		Previous:  previous,
		RawStatus: string(incoming.Status),
	}

	switch {
	case !ok:
		res.Outcome = OutcomeInvalidStatus
	case previous == status:
		res.Outcome = OutcomeUnchanged
	default:
		res.Outcome = OutcomeUpdated
	}
	return res
}
