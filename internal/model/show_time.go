package model

import "time"

// ShowTime is a single screening of a movie in a hall.  Tickets are
// generated per show time, one for each seat in the hall.
type ShowTime struct {
	ID         uint64    `json:"id"`          // show_times.id
	MovieTitle string    `json:"movie_title"` // show_times.movie_title
	HallName   string    `json:"hall_name"`   // show_times.hall_name
	StartsAt   time.Time `json:"starts_at"`   // show_times.starts_at
}
