// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package gallery

import "context"

// # Gallery Data Access

// Repository defines the read contract the delivery pipeline depends on.
type Repository interface {

	/*
		FindEventBySlug returns the event published under the given slug.

		Parameters:
		  - context: context.Context
		  - slug: string (Public URL slug, already normalized)

		Returns:
		  - *Event: Hydrated event with protection configuration
		  - error: apperr.NotFound if no such event
	*/
	FindEventBySlug(context context.Context, slug string) (*Event, error)

	/*
		FindPhotoByID returns the photo with the given numeric ID.

		Parameters:
		  - context: context.Context
		  - id: int64

		Returns:
		  - *Photo: Hydrated photo record
		  - error: apperr.NotFound if no such photo
	*/
	FindPhotoByID(context context.Context, id int64) (*Photo, error)

	/*
		IncrementDownloadCount bumps the persistent download counter for a photo.

		Parameters:
		  - context: context.Context
		  - photoID: int64

		Returns:
		  - error: apperr.NotFound if the photo row is missing
	*/
	IncrementDownloadCount(context context.Context, photoID int64) error
}
